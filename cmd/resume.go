package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/shouni/go-comic-kit/pkg/checkpoint"

	"github.com/spf13/cobra"
)

// resumeCmd は保存したアーカイブから生成を再開するのだ。
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "保存したアーカイブから生成を再開しますなのだ。",
	Long: `generate や sample が保存した zip アーカイブを読み込み、生成済みの成果を再利用して続きから実行するのだ。
すべてのパネルが揃っている場合は、書き出しだけを行うのだよ。`,
	RunE: resumeCommand,
}

func init() {
	resumeCmd.Flags().StringVarP(&opts.ArchivePath, "archive", "a", "", "再開するアーカイブのパス（ローカル or gs://...）なのだ。")
}

func resumeCommand(cmd *cobra.Command, args []string) error {
	if opts.ArchivePath == "" {
		return fmt.Errorf("アーカイブ（--archive）を指定してほしいのだ")
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	appCtx, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	rc, err := appCtx.Reader.Open(ctx, opts.ArchivePath)
	if err != nil {
		return fmt.Errorf("アーカイブ '%s' を開けなかったのだ: %w", opts.ArchivePath, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("アーカイブ '%s' の読み込みに失敗したのだ: %w", opts.ArchivePath, err)
	}

	restored, err := checkpoint.Restore(data)
	if err != nil {
		return fmt.Errorf("アーカイブの復元に失敗したのだ: %w", err)
	}
	if err := appCtx.Orchestrator.Load(restored); err != nil {
		return err
	}

	hint := checkpoint.HintFor(restored)
	slog.Info(hint.Message(), "hint", hint, "run_id", restored.RunID, "stage", restored.Stage)

	switch {
	case hint == checkpoint.ResumeViewOnly:
		return publish(ctx, appCtx, appCtx.Orchestrator.Snapshot())
	case hint.Resumable():
		return runPipeline(ctx, appCtx, appCtx.Orchestrator.Retry)
	}
	return fmt.Errorf("アーカイブに再開できるデータがないのだ。generate で最初から始めてほしいのだ")
}
