package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// generateCmd は、1枚のキャラクター画像からコミックを生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "キャラクター画像からコミックを生成しますなのだ。",
	Long: `シード画像を解析してキャスト、物語、台本、キャラクター、背景、パネルを順に生成するのだ。
途中で失敗したときは <タイトル>_progress.zip を保存するので、resume コマンドで続きから再開できるのだよ。`,
	RunE: generateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&opts.ImagePath, "image", "i", "", "シード画像のパスまたはURL（ローカル, gs://, https://）なのだ。")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	if opts.ImagePath == "" {
		return fmt.Errorf("シード画像（--image）を指定してほしいのだ")
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	appCtx, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	img, err := appCtx.Images.Load(ctx, opts.ImagePath)
	if err != nil {
		return fmt.Errorf("シード画像の読み込みに失敗したのだ: %w", err)
	}

	slog.Info("コミック生成パイプラインを起動するのだ！",
		"image", opts.ImagePath,
		"scene_mode", appCtx.Config.SceneMode,
		"output", opts.OutputDir)

	return runPipeline(ctx, appCtx, func(ctx context.Context) error {
		return appCtx.Orchestrator.StartFromImage(ctx, img)
	})
}
