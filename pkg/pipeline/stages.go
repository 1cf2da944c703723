package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"golang.org/x/sync/errgroup"
)

// analyze はシード画像からキャラクタープロフィールを抽出します。
func (o *Orchestrator) analyze(ctx context.Context) error {
	var seed domain.Image
	o.view(func(s *State) { seed = s.SeedImage })
	if seed.IsEmpty() {
		return ErrNoSeedImage
	}

	profile, err := o.svc.AnalyzeImage(ctx, seed)
	if err != nil {
		return fmt.Errorf("キャラクター解析に失敗しました: %w", err)
	}
	o.update(func(s *State) { s.Profile = profile })
	slog.InfoContext(ctx, "キャラクタープロフィールを抽出しました", "art_style", profile.ArtStyle)
	return nil
}

// castConcepts はプロフィールからキャストを考案します。
func (o *Orchestrator) castConcepts(ctx context.Context) error {
	var profile *domain.CharacterProfile
	o.view(func(s *State) { profile = s.Profile })

	concepts, err := o.svc.GenerateCastConcepts(ctx, profile)
	if err != nil {
		return fmt.Errorf("キャストの生成に失敗しました: %w", err)
	}
	if len(concepts) == 0 {
		return fmt.Errorf("キャストが1人も生成されませんでした")
	}
	o.update(func(s *State) { s.Concepts = concepts })
	slog.InfoContext(ctx, "キャストを生成しました", "count", len(concepts))
	return nil
}

// blueprint はキャストから物語の設計図を作成します。
func (o *Orchestrator) blueprint(ctx context.Context) error {
	var concepts []domain.CharacterConcept
	o.view(func(s *State) { concepts = s.Concepts })

	bp, err := o.svc.DevelopBlueprint(ctx, concepts)
	if err != nil {
		return fmt.Errorf("物語の設計に失敗しました: %w", err)
	}
	o.update(func(s *State) { s.Blueprint = bp })
	slog.InfoContext(ctx, "物語の設計図を作成しました", "title", bp.Title, "acts", len(bp.ThreeActOutline))
	return nil
}

// script は台本を生成し、セリフの推敲と地の文の作成までを行います。
// 台本は推敲とナレーションが終わってから一度に状態へ反映するため、途中で失敗しても再開時には最初からやり直されます。
func (o *Orchestrator) script(ctx context.Context) error {
	var (
		bp       *domain.StoryDevelopmentPackage
		concepts []domain.CharacterConcept
	)
	o.view(func(s *State) {
		bp = s.Blueprint
		concepts = s.Concepts
	})

	outline, err := o.svc.GenerateScript(ctx, bp, domain.CastDescription(concepts))
	if err != nil {
		return fmt.Errorf("台本の生成に失敗しました: %w", err)
	}
	if len(outline.Panels) == 0 {
		return fmt.Errorf("台本にパネルが含まれていません")
	}
	slog.InfoContext(ctx, "台本を生成しました", "title", outline.Title, "panels", len(outline.Panels))

	if o.cfg.PolishDialogue {
		o.setStatus("セリフを推敲しています")
		outline.Panels = o.polish(ctx, outline.Panels, bp)
	}

	o.setStatus("地の文を書いています")
	narrative, err := o.svc.Narrate(ctx, outline)
	if err != nil {
		slog.WarnContext(ctx, "地の文の生成に失敗しました。地の文なしで続行します", "error", err)
	} else {
		outline.Narrative = narrative
	}

	o.update(func(s *State) { s.Outline = outline })
	return nil
}

// polish は各パネルのセリフを並行して推敲します。
// PolishDialogue は失敗時に元のパネルを返すため、1パネルの失敗が他に影響することはありません。
func (o *Orchestrator) polish(ctx context.Context, panels []domain.Panel, bp *domain.StoryDevelopmentPackage) []domain.Panel {
	polished := make([]domain.Panel, len(panels))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.PolishConcurrency)
	for i, p := range panels {
		eg.Go(func() error {
			polished[i] = o.svc.PolishDialogue(egCtx, p, bp)
			return nil
		})
	}
	// ゴルーチンは常に nil を返すのだ
	_ = eg.Wait()

	slog.InfoContext(ctx, "セリフの推敲が完了しました", "panels", len(panels))
	return polished
}
