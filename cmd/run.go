package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/checkpoint"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/publisher"

	"github.com/shouni/go-utils/urlpath"
	"github.com/spf13/cobra"
)

// loadConfig は環境変数を読み込み、フラグで上書きした設定を返すのだ。
func loadConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if opts.SceneMode != "" {
		mode, err := pipeline.ParseSceneMode(opts.SceneMode)
		if err != nil {
			return nil, err
		}
		cfg.SceneMode = mode
	}
	cfg.Options = opts
	return cfg, nil
}

// commandContext は Ctrl+C で中断できる context を返すのだ。
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// setupApp は設定を読み込んで依存関係を組み立てるのだ。
func setupApp(ctx context.Context) (*builder.AppContext, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	appCtx, err := builder.BuildAppContext(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("アプリケーションの初期化に失敗したのだ: %w", err)
	}
	return appCtx, nil
}

// runPipeline はパイプラインの操作を実行し、完了すればコミックを書き出すのだ。
// 失敗したときは途中経過を <タイトル>_progress.zip として保存してからエラーを返します。
func runPipeline(ctx context.Context, appCtx *builder.AppContext, op func(ctx context.Context) error) error {
	orch := appCtx.Orchestrator
	updates, unsubscribe := orch.Subscribe()
	watcher := newInterventionWatcher(appCtx, os.Stdin, os.Stderr)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.watch(ctx, updates)
	}()

	runErr := op(ctx)
	unsubscribe()
	// 標準入力の待ちで止まっている場合は、中断時に待たずに進みます。
	select {
	case <-watchDone:
	case <-ctx.Done():
	}

	snap := orch.Snapshot()
	if runErr != nil {
		if archivePath, err := saveCheckpoint(ctx, appCtx, snap); err != nil {
			slog.Error("途中経過の保存にも失敗したのだ", "error", err)
		} else {
			slog.Info("途中経過を保存したのだ。resume コマンドで再開できるのだ", "archive", archivePath)
		}
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", runErr)
	}
	return publish(ctx, appCtx, snap)
}

// publish は完成したコミックと最終アーカイブを書き出すのだ。
func publish(ctx context.Context, appCtx *builder.AppContext, snap pipeline.State) error {
	if snap.Outline == nil {
		return fmt.Errorf("台本がないため書き出せないのだ")
	}
	res, err := appCtx.Publisher.Publish(ctx, *snap.Outline, snap.Panels, publisher.Options{
		OutputDir: appCtx.Config.Options.OutputDir,
	})
	if err != nil {
		return fmt.Errorf("コミックの書き出しに失敗したのだ: %w", err)
	}
	archivePath, err := saveCheckpoint(ctx, appCtx, snap)
	if err != nil {
		slog.Warn("アーカイブの保存に失敗したのだ", "error", err)
	}

	slog.Info("すべての生成工程が完了したのだ！",
		"title", snap.Outline.Title,
		"markdown", res.MarkdownPath,
		"html", res.HTMLPath,
		"images", len(res.ImagePaths),
		"archive", archivePath)
	return nil
}

// saveCheckpoint は状態をアーカイブにしてチェックポイントストアに保存するのだ。
func saveCheckpoint(ctx context.Context, appCtx *builder.AppContext, snap pipeline.State) (string, error) {
	data, err := checkpoint.Export(snap)
	if err != nil {
		return "", err
	}
	name := checkpoint.ArchiveName(snap)
	// 中断された context では保存できないため、保存だけは切り離して実行します。
	if err := appCtx.Checkpoints.Save(context.WithoutCancel(ctx), name, data); err != nil {
		return "", err
	}
	if store, ok := appCtx.Checkpoints.(*checkpoint.RemoteStore); ok {
		if p, err := store.Path(name); err == nil {
			return p, nil
		}
	}
	return name, nil
}

// interventionWatcher はスナップショットを監視し、介入待ちになったら判断を返すのだ。
type interventionWatcher struct {
	appCtx *builder.AppContext
	mode   string
	in     *bufio.Reader
	out    io.Writer
}

func newInterventionWatcher(appCtx *builder.AppContext, in io.Reader, out io.Writer) *interventionWatcher {
	return &interventionWatcher{
		appCtx: appCtx,
		mode:   appCtx.Config.Options.Intervention,
		in:     bufio.NewReader(in),
		out:    out,
	}
}

func (w *interventionWatcher) watch(ctx context.Context, updates <-chan pipeline.State) {
	var lastStage pipeline.Stage
	lastProgress := -1
	handled := ""
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if snap.Stage != lastStage || snap.Progress != lastProgress {
				slog.Info(snap.Status, "stage", snap.Stage, "progress", snap.Progress)
				lastStage, lastProgress = snap.Stage, snap.Progress
			}
			if snap.Pending == nil {
				continue
			}
			id := fmt.Sprintf("%s/%s/%d", snap.Pending.Panel, snap.Pending.Character, snap.Pending.Attempt)
			if id == handled {
				continue
			}
			handled = id
			d := w.decide(ctx, *snap.Pending)
			if err := w.appCtx.Orchestrator.ResolveIntervention(d); err != nil {
				slog.Warn("介入の判断を渡せなかったのだ", "error", err)
			}
		}
	}
}

// decide はモードに応じて判断を決めるのだ。prompt モードでは標準入力から読み取ります。
func (w *interventionWatcher) decide(ctx context.Context, iv pipeline.Intervention) pipeline.Decision {
	slog.Warn("キャラクターの整合性チェックに失敗したのだ",
		"panel", iv.Panel, "character", iv.Character, "reason", iv.Reason, "attempt", iv.Attempt)

	switch w.mode {
	case config.InterventionAccept:
		return pipeline.Decision{Choice: pipeline.ChoiceAccept}
	case config.InterventionReject:
		return pipeline.Decision{Choice: pipeline.ChoiceReject}
	}

	w.saveReviewImages(ctx, iv)
	fmt.Fprintf(w.out, "\nパネル %s のキャラクター %s が参照画像と一致しないのだ: %s\n", iv.Panel, iv.Character, iv.Reason)
	for {
		fmt.Fprint(w.out, "accept で採用、reject [修正内容] で再生成するのだ > ")
		line, err := w.in.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			slog.Warn("入力を読み取れないため再生成を選ぶのだ", "error", err)
			return pipeline.Decision{Choice: pipeline.ChoiceReject}
		}
		word, reason, _ := strings.Cut(strings.TrimSpace(line), " ")
		choice, err := pipeline.ParseChoice(word)
		if err != nil {
			fmt.Fprintln(w.out, "accept か reject を入力してほしいのだ")
			continue
		}
		return pipeline.Decision{Choice: choice, Reason: strings.TrimSpace(reason)}
	}
}

// saveReviewImages は判断材料の画像を出力先に書き出すのだ。
func (w *interventionWatcher) saveReviewImages(ctx context.Context, iv pipeline.Intervention) {
	base := fmt.Sprintf("page_%s_panel_%d", iv.Panel.Page.PathSegment(), iv.Panel.Panel)
	reviews := []struct {
		suffix string
		image  domain.Image
	}{
		{"generated", iv.Image},
		{"reference", iv.Reference},
	}
	for _, r := range reviews {
		if r.image.IsEmpty() {
			continue
		}
		name := path.Join("intervention", base+"_"+r.suffix+imageExt(r.image.MIMEType))
		p, err := urlpath.ResolveOutputPath(w.appCtx.Config.Options.OutputDir, name)
		if err != nil {
			continue
		}
		if err := w.appCtx.Writer.Write(ctx, p, bytes.NewReader(r.image.Data), r.image.MIMEType); err != nil {
			slog.Warn("確認用画像の保存に失敗したのだ", "path", p, "error", err)
			continue
		}
		fmt.Fprintf(w.out, "%s: %s\n", r.suffix, p)
	}
}

func imageExt(mimeType string) string {
	if mimeType == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}
