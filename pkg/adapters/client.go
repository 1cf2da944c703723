package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 60 * time.Minute
	defaultRateBurst       = 1

	textSystemInstruction = "You are a meticulous comic book production assistant. When asked for structured data, answer with a single JSON object and nothing else."
)

// GenerativeModel は Gemini クライアントのうち、このパッケージが利用する操作だけを表します。
type GenerativeModel interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// Args は GeminiAdapter の生成に必要な依存関係と設定です。
type Args struct {
	AIClient      GenerativeModel
	PromptBuilder prompts.PromptBuilder
	TextModel     string
	ImageModel    string
	// RateInterval は画像生成リクエストの最小間隔です。0 の場合は制限しません。
	RateInterval time.Duration
}

// GeminiAdapter はテキスト・画像の生成モデル呼び出しを1往復ずつ実行し、結果を正規化します。
// 再試行は行いません。再試行の方針はパイプライン側が持ちます。
type GeminiAdapter struct {
	aiClient   GenerativeModel
	prompts    prompts.PromptBuilder
	textModel  string
	imageModel string
	limiter    *rate.Limiter
	partCache  *cache.Cache
}

// New は依存関係を検証して GeminiAdapter を初期化します。
func New(args Args) (*GeminiAdapter, error) {
	if args.AIClient == nil {
		return nil, fmt.Errorf("aiClient は必須です")
	}
	if args.PromptBuilder == nil {
		return nil, fmt.Errorf("promptBuilder は必須です")
	}
	if args.TextModel == "" || args.ImageModel == "" {
		return nil, fmt.Errorf("テキストモデルと画像モデルの指定は必須です")
	}

	var limiter *rate.Limiter
	if args.RateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(args.RateInterval), defaultRateBurst)
	}

	return &GeminiAdapter{
		aiClient:   args.AIClient,
		prompts:    args.PromptBuilder,
		textModel:  args.TextModel,
		imageModel: args.ImageModel,
		limiter:    limiter,
		partCache:  cache.New(defaultCacheExpiration, cacheCleanupInterval),
	}, nil
}

// generateText はテキストモデルを呼び出し、空でない応答テキストを返します。
func (a *GeminiAdapter) generateText(ctx context.Context, op string, parts []*genai.Part) (string, error) {
	startTime := time.Now()
	slog.DebugContext(ctx, "テキスト生成を開始します", "op", op, "model", a.textModel)

	resp, err := a.aiClient.GenerateWithParts(ctx, a.textModel, parts, gemini.GenerateOptions{
		SystemPrompt: textSystemInstruction,
	})
	if err != nil {
		slog.WarnContext(ctx, "テキスト生成に失敗しました", "op", op, "duration", time.Since(startTime).Round(time.Millisecond), "error", err)
		return "", fmt.Errorf("%s の呼び出しに失敗しました: %w", op, err)
	}

	text, finishReason := responseText(resp)
	if text == "" {
		err := emptyResponseError(finishReason)
		slog.WarnContext(ctx, "テキスト生成の応答が空でした", "op", op, "finish_reason", finishReason, "duration", time.Since(startTime).Round(time.Millisecond))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	slog.InfoContext(ctx, "テキスト生成が完了しました", "op", op, "duration", time.Since(startTime).Round(time.Millisecond))
	return text, nil
}

// generateStructured はテキストモデルを呼び出し、応答を out に解析します。
func (a *GeminiAdapter) generateStructured(ctx context.Context, op string, parts []*genai.Part, out any) error {
	text, err := a.generateText(ctx, op, parts)
	if err != nil {
		return err
	}
	if err := decodeStructured(text, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (a *GeminiAdapter) buildPrompt(mode string, data prompts.TemplateData) (*genai.Part, error) {
	prompt, err := a.prompts.Build(mode, data)
	if err != nil {
		return nil, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}
	return &genai.Part{Text: prompt}, nil
}
