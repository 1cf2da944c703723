package cmd

import (
	"github.com/shouni/go-comic-kit/internal/server"

	"github.com/spf13/cobra"
	ginprometheus "github.com/zsais/go-gin-prometheus"
)

// serveCmd は Web UI から操作するための HTTP API を起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "パイプラインを操作する HTTP API を起動しますなのだ。",
	Long: `画像のアップロード、サンプル実行、介入の判断、エクスポートと復元を HTTP で受け付けるのだ。
進捗は /api/run/events の SSE で配信され、/metrics で Prometheus のメトリクスを公開するのだよ。`,
	RunE: serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&opts.Addr, "addr", "", "待ち受けアドレスなのだ（未指定なら SERVER_ADDR）。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	appCtx, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	srv, err := server.New(appCtx.Orchestrator, server.Options{
		CORSOrigins: appCtx.Config.CORSOrigins,
		Store:       appCtx.Checkpoints,
		Images:      appCtx.Images,
		Prometheus:  ginprometheus.NewPrometheus("gin"),
	})
	if err != nil {
		return err
	}

	addr := appCtx.Config.ServerAddr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	return srv.Run(ctx, addr)
}
