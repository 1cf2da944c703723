package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/shouni/gemini-image-kit/pkg/imgutil"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

const (
	// ImageCompressionQuality は参照画像を JPEG に正規化する際の品質です。
	ImageCompressionQuality = 85

	cacheKeyReferencePart = "ref_part_"
)

// GenerateImage はプロンプトと参照画像から画像を1枚生成します。
func (a *GeminiAdapter) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.Image, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return domain.Image{}, fmt.Errorf("レートリミッターの待機中にエラーが発生しました: %w", err)
		}
	}

	parts := make([]*genai.Part, 0, len(req.References)+1)
	for _, ref := range req.References {
		if ref.IsEmpty() {
			continue
		}
		parts = append(parts, a.imagePart(ctx, ref))
	}
	parts = append(parts, &genai.Part{Text: composeImagePrompt(req)})

	startTime := time.Now()
	logger := slog.With("model", a.imageModel, "aspect_ratio", req.AspectRatio, "ref_count", len(parts)-1)
	logger.DebugContext(ctx, "画像生成を開始します", "has_correction", req.CorrectionNote != "")

	resp, err := a.aiClient.GenerateWithParts(ctx, a.imageModel, parts, gemini.GenerateOptions{
		AspectRatio:  req.AspectRatio,
		SystemPrompt: prompts.ComicSystemInstruction,
	})
	if err != nil {
		logger.WarnContext(ctx, "画像生成の呼び出しに失敗しました", "duration", time.Since(startTime).Round(time.Millisecond), "error", err)
		return domain.Image{}, fmt.Errorf("%w: %w", ErrImageGenerationFailed, err)
	}

	img, err := parseImageResponse(resp)
	if err != nil {
		logger.WarnContext(ctx, "画像が返されませんでした", "duration", time.Since(startTime).Round(time.Millisecond), "error", err)
		return domain.Image{}, err
	}

	logger.InfoContext(ctx, "画像生成が完了しました", "duration", time.Since(startTime).Round(time.Millisecond), "bytes", len(img.Data))
	return img, nil
}

// composeImagePrompt は修正注記とアスペクト比の指示をプロンプトに付与します。
func composeImagePrompt(req domain.ImageRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Prompt)
	if note := strings.TrimSpace(req.CorrectionNote); note != "" {
		sb.WriteString("\n\n### CORRECTION FROM THE PREVIOUS ATTEMPT ###\n")
		sb.WriteString("The previous image was rejected for this reason. Fix it in this attempt: ")
		sb.WriteString(note)
	}
	if req.AspectRatio != "" {
		sb.WriteString("\n\n")
		sb.WriteString(prompts.AspectInstruction(req.AspectRatio))
	}
	return sb.String()
}

// parseImageResponse は最初のインライン画像を返します。
func parseImageResponse(resp *gemini.Response) (domain.Image, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return domain.Image{}, fmt.Errorf("%w: Geminiからの有効な応答がありませんでした", ErrImageGenerationFailed)
	}

	// 現在の仕様では、Geminiからの最初の候補 (Candidate) のみを利用する。
	candidate := resp.RawResponse.Candidates[0]
	var texts []string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = http.DetectContentType(part.InlineData.Data)
				}
				return domain.Image{Data: part.InlineData.Data, MIMEType: mimeType}, nil
			}
			if s := strings.TrimSpace(part.Text); s != "" && !part.Thought {
				texts = append(texts, s)
			}
		}
	}

	if isBlockedReason(candidate.FinishReason) {
		return domain.Image{}, fmt.Errorf("%w (FinishReason: %s)", ErrImageGenerationBlocked, candidate.FinishReason)
	}
	if len(texts) > 0 {
		return domain.Image{}, fmt.Errorf("%w: %s", ErrImageGenerationFailed, truncateString(strings.Join(texts, " "), 300))
	}
	if isAbnormalReason(candidate.FinishReason) {
		return domain.Image{}, fmt.Errorf("%w (FinishReason: %s)", ErrImageGenerationFailed, candidate.FinishReason)
	}
	return domain.Image{}, fmt.Errorf("%w: 画像データが見つかりませんでした", ErrImageGenerationFailed)
}

// imagePart は画像をインラインパーツに変換します。PNG/JPEG 以外は JPEG に正規化し、結果をキャッシュします。
func (a *GeminiAdapter) imagePart(ctx context.Context, img domain.Image) *genai.Part {
	sum := sha256.Sum256(img.Data)
	key := cacheKeyReferencePart + hex.EncodeToString(sum[:])
	if val, ok := a.partCache.Get(key); ok {
		if part, ok := val.(*genai.Part); ok {
			return part
		}
	}

	data := img.Data
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if mimeType != "image/png" && mimeType != "image/jpeg" {
		if compressed, err := imgutil.CompressToJPEG(data, ImageCompressionQuality); err == nil {
			data = compressed
			mimeType = "image/jpeg"
		} else {
			slog.DebugContext(ctx, "参照画像のJPEG変換に失敗したため元のデータを使います", "mime_type", mimeType, "error", err)
		}
	}

	part := &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
	a.partCache.SetDefault(key, part)
	return part
}
