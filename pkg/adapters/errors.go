package adapters

import (
	"errors"
	"fmt"

	"google.golang.org/genai"
)

var (
	// ErrEmptyResponse はモデルがテキストを返さなかったことを表します。
	ErrEmptyResponse = errors.New("AIからの応答が空でした")
	// ErrMalformedResponse は応答を期待する構造化形式として解析できなかったことを表します。
	ErrMalformedResponse = errors.New("AIからの応答を構造化データとして解析できませんでした")
	// ErrImageGenerationBlocked は安全フィルタにより画像生成がブロックされたことを表します。
	ErrImageGenerationBlocked = errors.New("画像生成が安全フィルタによりブロックされました")
	// ErrImageGenerationFailed は画像が返されなかったことを表します。
	ErrImageGenerationFailed = errors.New("画像生成に失敗しました")
)

// isBlockedReason は安全系の終了理由かどうかを判定します。
func isBlockedReason(fr genai.FinishReason) bool {
	switch fr {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return true
	}
	return string(fr) == "IMAGE_SAFETY"
}

// isAbnormalReason は STOP 以外の明示的な終了理由かどうかを判定します。
func isAbnormalReason(fr genai.FinishReason) bool {
	return fr != "" && fr != genai.FinishReasonUnspecified && fr != genai.FinishReasonStop
}

// emptyResponseError は終了理由に応じた説明付きの ErrEmptyResponse を返します。
func emptyResponseError(fr genai.FinishReason) error {
	if !isAbnormalReason(fr) {
		return ErrEmptyResponse
	}
	if isBlockedReason(fr) {
		return fmt.Errorf("%w (finish reason: %s): 安全フィルタによって応答がブロックされた可能性があります", ErrEmptyResponse, fr)
	}
	return fmt.Errorf("%w (finish reason: %s)", ErrEmptyResponse, fr)
}
