package pipeline

import "errors"

var (
	// ErrBusy はパイプラインが実行中のため操作を受け付けられないことを表します。
	ErrBusy = errors.New("パイプラインは既に実行中です")
	// ErrNoSeedImage は解析に必要なシード画像がないことを表します。
	ErrNoSeedImage = errors.New("シード画像がありません")
	// ErrNoPendingIntervention は保留中の介入がないことを表します。
	ErrNoPendingIntervention = errors.New("保留中の介入はありません")
	// ErrInvalidChoice は介入の選択肢が不正であることを表します。
	ErrInvalidChoice = errors.New("介入の選択肢は accept または reject です")
	// ErrConsistency はすべての試行でキャラクターの一貫性チェックに合格しなかったことを表します。
	ErrConsistency = errors.New("キャラクターの一貫性チェックに合格しませんでした")
)
