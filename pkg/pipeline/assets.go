package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/metrics"
	"github.com/shouni/go-comic-kit/pkg/prompts"
)

func profileOf(s *State) domain.CharacterProfile {
	if s.Profile == nil {
		return domain.CharacterProfile{}
	}
	return *s.Profile
}

// portraitsDone はすべてのキャストがロスターに揃っているかを返します。
func (o *Orchestrator) portraitsDone(s *State) bool {
	for _, c := range s.Concepts {
		if !s.Roster.Has(c.Name) {
			return false
		}
	}
	return true
}

// portraits はロスターにいないキャストのポートレートをショットごとに生成します。
// 全ショットが揃ったキャラクターだけをロスターに追加するため、再開時は途中のキャラクターからやり直します。
func (o *Orchestrator) portraits(ctx context.Context) error {
	var (
		profile  domain.CharacterProfile
		concepts []domain.CharacterConcept
		seed     domain.Image
	)
	o.view(func(s *State) {
		profile = profileOf(s)
		concepts = append([]domain.CharacterConcept(nil), s.Concepts...)
		seed = s.SeedImage
	})

	for i, c := range concepts {
		var exists bool
		o.view(func(s *State) { exists = s.Roster.Has(c.Name) })
		if exists {
			continue
		}

		o.setStatus(fmt.Sprintf("%s を描いています (%d/%d)", c.Name, i+1, len(concepts)))
		logger := slog.With("character", c.Name, "role", c.Role)

		images := make(map[domain.Shot]domain.Image, len(domain.ShotKeys))
		for _, shot := range domain.ShotKeys {
			prompt, err := o.images.BuildPortrait(profile, c, shot)
			if err != nil {
				return fmt.Errorf("ポートレートのプロンプト構築に失敗しました (%s/%s): %w", c.Name, shot, err)
			}

			var refs []domain.Image
			if strings.EqualFold(c.Role, domain.RoleProtagonist) && !seed.IsEmpty() {
				refs = append(refs, seed)
			}
			if full, ok := images[domain.ShotFull]; ok && shot != domain.ShotFull {
				refs = append(refs, full)
			}

			img, err := o.svc.GenerateImage(ctx, domain.ImageRequest{
				Prompt:      prompt,
				References:  refs,
				AspectRatio: prompts.AspectSquare,
			})
			metrics.RecordImageAttempt(err)
			if err != nil {
				return fmt.Errorf("ポートレートの生成に失敗しました (%s/%s): %w", c.Name, shot, err)
			}
			images[shot] = img
			logger.DebugContext(ctx, "ショットを生成しました", "shot", shot)
		}

		o.update(func(s *State) {
			s.Roster = append(s.Roster, domain.GeneratedCharacter{CharacterConcept: c, Images: images})
		})
		logger.InfoContext(ctx, "キャラクターをロスターに追加しました")
	}
	return nil
}

// scenesDone は台本のすべてのロケーションに設定された視点の背景が揃っているかを返します。
func (o *Orchestrator) scenesDone(s *State) bool {
	if s.Outline == nil {
		return false
	}
	keys, _ := s.Outline.Locations()
	for _, key := range keys {
		for _, p := range o.cfg.SceneMode.Perspectives() {
			if !s.Scenes.Has(key, p) {
				return false
			}
		}
	}
	return true
}

// scenes は台本に登場するロケーションごとに背景画像を生成します。
// ロケーションは正規化キーで重複排除され、プロンプトには最初に現れたパネルの設定を使います。
func (o *Orchestrator) scenes(ctx context.Context) error {
	var (
		profile  domain.CharacterProfile
		keys     []string
		settings map[string]domain.Setting
	)
	o.view(func(s *State) {
		profile = profileOf(s)
		keys, settings = s.Outline.Locations()
	})

	for i, key := range keys {
		setting := settings[key]
		logger := slog.With("location", setting.Location)

		for _, p := range o.cfg.SceneMode.Perspectives() {
			var exists bool
			o.view(func(s *State) { exists = s.Scenes.Has(key, p) })
			if exists {
				continue
			}

			o.setStatus(fmt.Sprintf("背景「%s」を描いています (%d/%d)", setting.Location, i+1, len(keys)))
			prompt, err := o.images.BuildScene(profile, setting, p)
			if err != nil {
				return fmt.Errorf("背景のプロンプト構築に失敗しました (%s/%s): %w", setting.Location, p, err)
			}

			img, err := o.svc.GenerateImage(ctx, domain.ImageRequest{
				Prompt:      prompt,
				AspectRatio: prompts.AspectLandscape,
			})
			metrics.RecordImageAttempt(err)
			if err != nil {
				return fmt.Errorf("背景の生成に失敗しました (%s/%s): %w", setting.Location, p, err)
			}

			o.update(func(s *State) { s.Scenes.Put(key, p, img) })
			logger.InfoContext(ctx, "背景を生成しました", "perspective", p)
		}
	}
	return nil
}
