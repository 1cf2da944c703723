package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shouni/go-comic-kit/pkg/adapters"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/metrics"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

// panels は表紙を最初に生成し、残りのパネルを台本の順に生成します。
// 生成済みのパネルはスキップされるため、途中で失敗しても続きから再開できます。
func (o *Orchestrator) panels(ctx context.Context) error {
	snap := o.Snapshot()
	outline := snap.Outline
	profile := profileOf(&snap)
	total := len(outline.Panels)

	if cover, ok := outline.Cover(); ok && !snap.HasPanel(cover.Key()) {
		o.setStatus("表紙を描いています")
		img, err := o.generateCover(ctx, profile, snap, cover)
		if err != nil {
			return err
		}
		o.appendPanel(domain.GeneratedPanel{Panel: cover, Image: img}, total)
	}

	for i, panel := range outline.Panels {
		if panel.PageNumber == domain.CoverPage {
			continue
		}
		var exists bool
		o.view(func(s *State) { exists = s.HasPanel(panel.Key()) })
		if exists {
			continue
		}

		o.setStatus(fmt.Sprintf("パネル %s を描いています (%d/%d)", panel.Key(), i+1, total))
		img, err := o.generatePanel(ctx, profile, snap.Roster, snap.Scenes, panel)
		if err != nil {
			return err
		}
		o.appendPanel(domain.GeneratedPanel{Panel: panel, Image: img}, total)
	}
	return nil
}

// appendPanel は生成済みパネルを追加し、進捗を更新します。
func (o *Orchestrator) appendPanel(gp domain.GeneratedPanel, total int) {
	var progress int
	o.update(func(s *State) {
		if s.HasPanel(gp.Key()) {
			return
		}
		s.Panels = append(s.Panels, gp)
		if total > 0 {
			s.Progress = int(math.Round(float64(len(s.Panels)) / float64(total) * 100))
		}
		progress = s.Progress
	})
	metrics.PipelineProgress.Set(float64(progress))
	slog.Info("パネルを生成しました", "panel", gp.Key().String(), "progress", progress)
}

// generateCover は主人公のポートレートを参照して表紙を生成します。
// 表紙は一貫性チェックを行わず、最初に成功した画像をそのまま採用します。
func (o *Orchestrator) generateCover(ctx context.Context, profile domain.CharacterProfile, snap State, cover domain.Panel) (domain.Image, error) {
	title := snap.Outline.Title
	var logline string
	if snap.Blueprint != nil {
		if title == "" {
			title = snap.Blueprint.Title
		}
		logline = snap.Blueprint.Logline
	}

	protagonist, _ := snap.Roster.Protagonist()
	prompt, err := o.images.BuildCover(profile, title, logline, protagonist)
	if err != nil {
		return domain.Image{}, fmt.Errorf("表紙のプロンプト構築に失敗しました: %w", err)
	}

	req := domain.ImageRequest{
		Prompt:      prompt,
		References:  protagonist.ReferenceImages(),
		AspectRatio: prompts.AspectPortrait,
	}
	logger := slog.With("panel", cover.Key().String())

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		img, err := o.svc.GenerateImage(ctx, req)
		metrics.RecordImageAttempt(err)
		if err == nil {
			return img, nil
		}
		if attempt == o.cfg.MaxAttempts {
			return domain.Image{}, fmt.Errorf("表紙の生成に失敗しました: %w", err)
		}
		logger.WarnContext(ctx, "表紙の生成に失敗しました。再試行します", "attempt", attempt, "error", err)
		req.CorrectionNote = correctionNote(err.Error(), err)
	}
	return domain.Image{}, fmt.Errorf("表紙の生成に失敗しました")
}

// generatePanel はパネル1コマを生成し、登場キャラクターの一貫性を検証します。
func (o *Orchestrator) generatePanel(ctx context.Context, profile domain.CharacterProfile, roster domain.Roster, scenes domain.SceneRegistry, panel domain.Panel) (domain.Image, error) {
	key := panel.Key()
	logger := slog.With("panel", key.String())

	chars := make([]domain.GeneratedCharacter, 0)
	var refs []domain.Image
	for _, name := range panel.CharacterNames() {
		c, ok := roster.Find(name)
		if !ok {
			logger.WarnContext(ctx, "ロスターにいないキャラクターは検証しません", "character", name)
			continue
		}
		chars = append(chars, c)
		refs = append(refs, c.ReferenceImages()...)
	}
	if bg, ok := backgroundFor(scenes, panel); ok {
		refs = append(refs, bg)
	}

	prompt, err := o.images.BuildPanel(profile, panel, chars)
	if err != nil {
		return domain.Image{}, fmt.Errorf("パネル %s のプロンプト構築に失敗しました: %w", key, err)
	}

	var note, lastReason string
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		img, err := o.svc.GenerateImage(ctx, domain.ImageRequest{
			Prompt:         prompt,
			References:     refs,
			AspectRatio:    prompts.PanelAspectRatio(panel),
			CorrectionNote: note,
		})
		metrics.RecordImageAttempt(err)
		if err != nil {
			if attempt == o.cfg.MaxAttempts {
				return domain.Image{}, fmt.Errorf("パネル %s の画像生成に失敗しました: %w", key, err)
			}
			logger.WarnContext(ctx, "画像生成に失敗しました。再試行します", "attempt", attempt, "error", err)
			lastReason = err.Error()
			note = correctionNote(lastReason, err)
			continue
		}

		if len(chars) == 0 {
			return img, nil
		}

		failed, reason, ok := o.verify(ctx, img, chars)
		if ok {
			logger.InfoContext(ctx, "一貫性チェックに合格しました", "attempt", attempt)
			return img, nil
		}
		metrics.VerificationFailuresTotal.Inc()
		logger.WarnContext(ctx, "一貫性チェックに不合格でした", "attempt", attempt, "character", failed.Name, "reason", reason)
		lastReason = reason
		note = reason

		if attempt == o.cfg.MaxAttempts-1 {
			d, err := o.awaitDecision(ctx, Intervention{
				Panel:     key,
				Character: failed.Name,
				Image:     img,
				Reference: failed.Reference(),
				Reason:    reason,
				Attempt:   attempt,
			})
			if err != nil {
				return domain.Image{}, err
			}
			if d.Choice == ChoiceAccept {
				logger.InfoContext(ctx, "介入により画像が承認されました", "attempt", attempt)
				return img, nil
			}
			if d.Reason != "" {
				note = d.Reason
			}
		}
	}

	return domain.Image{}, fmt.Errorf("パネル %s: %w: %s", key, ErrConsistency, lastReason)
}

// verify は登場キャラクターを順に検証し、最初に不一致となったキャラクターで打ち切ります。
// 検証呼び出し自体のエラーも不一致として扱います。
func (o *Orchestrator) verify(ctx context.Context, img domain.Image, chars []domain.GeneratedCharacter) (domain.GeneratedCharacter, string, bool) {
	for _, c := range chars {
		v, err := o.svc.VerifyConsistency(ctx, img, c)
		if err != nil {
			return c, fmt.Sprintf("verification error: %v", err), false
		}
		if !v.Match {
			reason := v.Reason
			if reason == "" {
				reason = fmt.Sprintf("%s does not match the reference", c.Name)
			}
			return c, reason, false
		}
	}
	return domain.GeneratedCharacter{}, "", true
}

// awaitDecision は介入待ちの状態に遷移し、人の判断が届くまでパネル生成を停止します。
// 待機中もスナップショットの取得やエクスポートは行えます。
func (o *Orchestrator) awaitDecision(ctx context.Context, iv Intervention) (Decision, error) {
	o.drainDecisions()
	o.update(func(s *State) {
		s.Pending = &iv
		s.Stage = StageAwaitingIntervention
		s.Status = fmt.Sprintf("パネル %s の %s について確認を待っています", iv.Panel, iv.Character)
	})
	slog.WarnContext(ctx, "人の判断を待っています", "panel", iv.Panel.String(), "character", iv.Character, "reason", iv.Reason)

	select {
	case d := <-o.decisions:
		metrics.InterventionsTotal.WithLabelValues(string(d.Choice)).Inc()
		o.update(func(s *State) {
			s.Pending = nil
			s.Stage = StagePanels
			s.Status = fmt.Sprintf("パネル %s を描いています", iv.Panel)
		})
		slog.InfoContext(ctx, "介入の判断を受け取りました", "panel", iv.Panel.String(), "choice", d.Choice)
		return d, nil
	case <-ctx.Done():
		return Decision{}, fmt.Errorf("介入待ちが中断されました: %w", ctx.Err())
	}
}

// backgroundFor はパネルのロケーションに対応する背景画像を構図から選びます。
func backgroundFor(scenes domain.SceneRegistry, panel domain.Panel) (domain.Image, bool) {
	set, ok := scenes[domain.LocationKey(panel.Visuals.Setting.Location)]
	if !ok {
		return domain.Image{}, false
	}
	p, ok := domain.SelectPerspective(set, panel.Visuals.Composition)
	if !ok {
		return domain.Image{}, false
	}
	img := set[p]
	return img, !img.IsEmpty()
}

// correctionNote は次の試行に渡す修正注記を作ります。
// 安全フィルタでブロックされた場合は表現を和らげる指示を付け加えます。
func correctionNote(reason string, err error) string {
	if errors.Is(err, adapters.ErrImageGenerationBlocked) {
		return reason + "\n" + prompts.SafetyReframingNote
	}
	return reason
}
