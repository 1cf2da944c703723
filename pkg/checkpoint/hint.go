package checkpoint

import "github.com/shouni/go-comic-kit/pkg/pipeline"

// ResumeHint は復元した状態からどこまで再開できるかを表します。
type ResumeHint string

const (
	// ResumeViewOnly はすべてのパネルが揃っており、閲覧だけで済む状態です。
	ResumeViewOnly ResumeHint = "view_only"
	// ResumePanels はロスターが揃っており、パネル生成から再開できる状態です。
	ResumePanels ResumeHint = "panels"
	// ResumeAssets は台本があり、ポートレートと背景の生成から再開できる状態です。
	ResumeAssets ResumeHint = "assets"
	// ResumePlanning は台本より前の工程から再開できる状態です。
	ResumePlanning ResumeHint = "planning"
	// ResumeInitial は再開できる成果がなく、最初からやり直す状態です。
	ResumeInitial ResumeHint = "initial"
)

// HintFor は状態の中身から再開の目安を判定します。
func HintFor(s pipeline.State) ResumeHint {
	switch {
	case s.Outline != nil && len(s.Outline.Panels) > 0 && len(s.Panels) >= len(s.Outline.Panels):
		return ResumeViewOnly
	case s.Outline != nil && len(s.Roster) > 0:
		return ResumePanels
	case s.Outline != nil:
		return ResumeAssets
	case s.Profile != nil || len(s.Concepts) > 0 || s.Blueprint != nil || !s.SeedImage.IsEmpty():
		return ResumePlanning
	}
	return ResumeInitial
}

// Resumable は Retry で続きを実行する意味があるかを返します。
func (h ResumeHint) Resumable() bool {
	switch h {
	case ResumePanels, ResumeAssets, ResumePlanning:
		return true
	}
	return false
}

// Message は利用者向けの説明を返します。
func (h ResumeHint) Message() string {
	switch h {
	case ResumeViewOnly:
		return "すべてのパネルが揃っています。閲覧またはエクスポートできます"
	case ResumePanels:
		return "キャラクターが揃っています。パネル生成から再開できます"
	case ResumeAssets:
		return "台本があります。キャラクターと背景の生成から再開できます"
	case ResumePlanning:
		return "物語の準備の途中です。続きから再開できます"
	}
	return "再開できるデータがありません。画像をアップロードして最初から始めてください"
}
