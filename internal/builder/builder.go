package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/adapters"
	"github.com/shouni/go-comic-kit/pkg/checkpoint"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/publisher"

	"github.com/redis/go-redis/v9"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	textbuilder "github.com/shouni/go-text-format/pkg/builder"
	"google.golang.org/genai"
)

const defaultGeminiTemperature = float32(0.2)

// AppContext は、アプリケーション実行に必要な共通コンポーネントを保持するのだ。
// CLI とサーバーはこれを受け取って各操作を組み立てます。
type AppContext struct {
	Config       *config.Config            // Configは、環境変数とフラグから組み立てた設定です。
	Reader       remoteio.InputReader      // Readerは、シード画像やアーカイブの読み込みに使用する入力元です。
	Writer       remoteio.OutputWriter     // Writerは、生成物を保存するための出力先です。
	Images       *ImageSource              // Imagesは、シード画像をパスや URL から読み込みます。
	Orchestrator *pipeline.Orchestrator    // Orchestratorは、生成パイプラインの本体です。
	Publisher    *publisher.ComicPublisher // Publisherは、完成したコミックを書き出します。
	Checkpoints  checkpoint.Store          // Checkpointsは、エクスポートしたアーカイブの保存先です。
	closers      []func() error
}

// Close は外部接続を閉じます。
func (a *AppContext) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildAppContext は設定からすべての依存関係を組み立てるのだ！
func BuildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	timeout := cfg.Options.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	httpClient := httpkit.New(timeout)

	aiClient, err := InitializeAIClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSクライアントファクトリの初期化に失敗しました: %w", err)
	}
	reader, err := gcsFactory.NewInputReader()
	if err != nil {
		return nil, fmt.Errorf("InputReaderの初期化に失敗しました: %w", err)
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, fmt.Errorf("OutputWriterの初期化に失敗しました: %w", err)
	}

	images, err := NewImageSource(reader, httpClient)
	if err != nil {
		return nil, err
	}

	orchestrator, err := BuildOrchestrator(aiClient, cfg)
	if err != nil {
		return nil, err
	}

	pub, err := BuildPublisher(writer)
	if err != nil {
		return nil, err
	}

	appCtx := &AppContext{
		Config:       cfg,
		Reader:       reader,
		Writer:       writer,
		Images:       images,
		Orchestrator: orchestrator,
		Publisher:    pub,
	}

	store, closer, err := BuildCheckpointStore(ctx, cfg, reader, writer)
	if err != nil {
		return nil, err
	}
	appCtx.Checkpoints = store
	if closer != nil {
		appCtx.closers = append(appCtx.closers, closer)
	}
	return appCtx, nil
}

// InitializeAIClient は gemini クライアントを初期化します。
func InitializeAIClient(ctx context.Context, apiKey string) (adapters.GenerativeModel, error) {
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// BuildOrchestrator はプロンプトビルダーとアダプターを組み立て、パイプラインを生成します。
func BuildOrchestrator(aiClient adapters.GenerativeModel, cfg *config.Config) (*pipeline.Orchestrator, error) {
	textPrompts, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("TextPromptBuilder の初期化に失敗しました: %w", err)
	}

	textModel, imageModel := cfg.GeminiModel, cfg.GeminiImageModel
	if cfg.Options.AIModel != "" {
		textModel = cfg.Options.AIModel
	}
	if cfg.Options.ImageModel != "" {
		imageModel = cfg.Options.ImageModel
	}

	svc, err := adapters.New(adapters.Args{
		AIClient:      aiClient,
		PromptBuilder: textPrompts,
		TextModel:     textModel,
		ImageModel:    imageModel,
		RateInterval:  cfg.ImageRateInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiアダプターの初期化に失敗しました: %w", err)
	}

	slog.Info("パイプラインを構築します",
		"text_model", textModel,
		"image_model", imageModel,
		"scene_mode", cfg.SceneMode,
		"rate_interval", cfg.ImageRateInterval)

	imagePrompts := prompts.NewImagePromptBuilder(textPrompts, cfg.ImagePromptSuffix)
	return pipeline.New(svc, imagePrompts, cfg.PipelineConfig())
}

// BuildPublisher は Webtoon 形式の HTML 変換付きでパブリッシャーを構築します。
func BuildPublisher(writer remoteio.OutputWriter) (*publisher.ComicPublisher, error) {
	appBuilder, err := textbuilder.NewBuilder(textbuilder.BuilderConfig{
		EnableHardWraps: true,
		Mode:            "webtoon",
	})
	if err != nil {
		return nil, fmt.Errorf("アプリケーションビルダーの初期化に失敗しました: %w", err)
	}

	md2htmlRunner, err := appBuilder.BuildRunner()
	if err != nil {
		return nil, fmt.Errorf("MarkdownToHtmlRunnerの初期化に失敗しました: %w", err)
	}
	return publisher.NewComicPublisher(writer, md2htmlRunner)
}

// BuildCheckpointStore はチェックポイントの保存先を選びます。
// REDIS_ADDR が設定されていれば Redis を、それ以外は CHECKPOINT_DIR（ローカルまたは gs://）を使います。
func BuildCheckpointStore(ctx context.Context, cfg *config.Config, reader remoteio.InputReader, writer remoteio.OutputWriter) (checkpoint.Store, func() error, error) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("Redis (%s) に接続できませんでした: %w", cfg.RedisAddr, err)
		}
		store, err := checkpoint.NewRedisStore(rdb, checkpoint.DefaultRedisTTL)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		slog.Info("チェックポイントを Redis に保存します", "addr", cfg.RedisAddr)
		return store, rdb.Close, nil
	}

	store, err := checkpoint.NewRemoteStore(reader, writer, cfg.CheckpointDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("チェックポイントをディレクトリに保存します", "dir", cfg.CheckpointDir)
	return store, nil, nil
}
