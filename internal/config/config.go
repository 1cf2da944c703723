package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/pipeline"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultModel             = "gemini-3-flash-preview"
	DefaultImageModel        = "gemini-3-pro-image-preview"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultRateInterval      = 10 * time.Second
	DefaultOutputDir         = "output"             // 完成したコミックの保存先なのだ
	DefaultCheckpointDir     = "output/checkpoints" // チェックポイント zip の保存先なのだ
	DefaultServerAddr        = ":8080"
	DefaultCORSOrigins       = "*"
	DefaultInterventionMode  = InterventionPrompt
	DefaultImagePromptSuffix = "Cinematic American comic book style, bold ink lines, dramatic shading, rich flat colors, high quality, consistent character design, ultra-detailed, high resolution"
)

// 介入が必要になったときの CLI の振る舞いなのだ。
const (
	InterventionPrompt = "prompt"
	InterventionAccept = "accept"
	InterventionReject = "reject"
)

// Config はアプリケーション全体の環境設定（APIキーや保存先）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey      string
	GeminiModel       string
	GeminiImageModel  string
	ImagePromptSuffix string
	ImageRateInterval time.Duration
	SceneMode         pipeline.SceneMode

	RedisAddr     string
	CheckpointDir string

	ServerAddr  string
	CORSOrigins []string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
// 解釈できない値は警告を出してデフォルト値を使います。
func LoadConfig() *Config {
	cfg := &Config{
		GeminiAPIKey:      envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:       envutil.GetEnv("GEMINI_MODEL", DefaultModel),
		GeminiImageModel:  envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		ImagePromptSuffix: envutil.GetEnv("IMAGE_PROMPT_SUFFIX", DefaultImagePromptSuffix),
		ImageRateInterval: DefaultRateInterval,
		SceneMode:         pipeline.SceneModeSingle,
		RedisAddr:         envutil.GetEnv("REDIS_ADDR", ""),
		CheckpointDir:     envutil.GetEnv("CHECKPOINT_DIR", DefaultCheckpointDir),
		ServerAddr:        envutil.GetEnv("SERVER_ADDR", DefaultServerAddr),
		CORSOrigins:       splitList(envutil.GetEnv("CORS_ORIGINS", DefaultCORSOrigins)),
	}

	if raw := envutil.GetEnv("IMAGE_RATE_INTERVAL", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			cfg.ImageRateInterval = d
		} else {
			slog.Warn("IMAGE_RATE_INTERVAL を解釈できないためデフォルト値を使います", "value", raw, "default", DefaultRateInterval)
		}
	}

	if raw := envutil.GetEnv("SCENE_MODE", ""); raw != "" {
		if mode, err := pipeline.ParseSceneMode(raw); err == nil {
			cfg.SceneMode = mode
		} else {
			slog.Warn("SCENE_MODE を解釈できないためデフォルト値を使います", "value", raw, "error", err)
		}
	}
	return cfg
}

// PipelineConfig はパイプラインに渡す設定を組み立てるのだ。
func (c *Config) PipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.SceneMode = c.SceneMode
	if c.Options.SkipPolish {
		pc.PolishDialogue = false
	}
	return pc
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// ソース入力関連
	ImagePath   string // --image: シード画像のパスまたはURL
	ArchivePath string // --archive: 再開するチェックポイント zip

	// 出力関連
	OutputDir string // --output-dir

	// AI挙動設定
	AIModel      string // --model: テキスト生成用のGeminiモデル
	ImageModel   string // --image-model: 画像生成用のGeminiモデル
	SceneMode    string // --scene-mode
	Intervention string // --intervention
	SkipPolish   bool   // --skip-polish

	// サーバー
	Addr string // --addr

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
