package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// sampleCmd は同梱のサンプル台本からコミックを生成するのだ。
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "同梱のサンプル台本でコミックを生成しますなのだ。",
	Long: `同梱のキャラクター設定と台本を使い、画像の生成だけを行うのだ。
サンプルは3ページ目までに絞り込まれるのだよ。`,
	RunE: sampleCommand,
}

func sampleCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	appCtx, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	slog.Info("サンプル台本でパイプラインを起動するのだ！", "output", opts.OutputDir)
	return runPipeline(ctx, appCtx, appCtx.Orchestrator.StartFromSample)
}
