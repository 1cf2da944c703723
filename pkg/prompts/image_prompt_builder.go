package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

// ImagePromptBuilder は、プロフィールとロスターを考慮して画像生成用のプロンプトを構築します。
type ImagePromptBuilder struct {
	builder       PromptBuilder
	defaultSuffix string // "noir ink, high contrast" 等の共通サフィックス
}

// NewImagePromptBuilder は新しい ImagePromptBuilder を生成します。
func NewImagePromptBuilder(builder PromptBuilder, suffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{
		builder:       builder,
		defaultSuffix: suffix,
	}
}

// BuildPortrait はキャラクター1人・1ショット分のプロンプトを生成します。
func (pb *ImagePromptBuilder) BuildPortrait(profile domain.CharacterProfile, c domain.CharacterConcept, shot domain.Shot) (string, error) {
	tags := c.ConsistencyTags
	if tags == "" && strings.EqualFold(c.Role, domain.RoleProtagonist) {
		tags = profile.ConsistencyTags
	}
	return pb.build(ModePortrait, TemplateData{
		ArtStyle:             profile.ArtStyle,
		CharacterName:        c.Name,
		CharacterDescription: c.Description,
		ConsistencyTags:      tags,
		ShotDescription:      ShotDescription(shot),
	})
}

// BuildScene はロケーション1か所・1視点分の背景プロンプトを生成します。
func (pb *ImagePromptBuilder) BuildScene(profile domain.CharacterProfile, setting domain.Setting, p domain.Perspective) (string, error) {
	return pb.build(ModeScene, TemplateData{
		ArtStyle:               profile.ArtStyle,
		Location:               setting.Location,
		TimeOfDay:              setting.TimeOfDay,
		SettingDescription:     setting.Description,
		PerspectiveDescription: PerspectiveDescription(p),
	})
}

// BuildCover は表紙のプロンプトを生成します。
func (pb *ImagePromptBuilder) BuildCover(profile domain.CharacterProfile, title, logline string, protagonist domain.GeneratedCharacter) (string, error) {
	tags := protagonist.ConsistencyTags
	if tags == "" {
		tags = profile.ConsistencyTags
	}
	return pb.build(ModeCover, TemplateData{
		ArtStyle:        profile.ArtStyle,
		Title:           title,
		Logline:         logline,
		CharacterName:   protagonist.Name,
		ConsistencyTags: tags,
	})
}

// BuildPanel はパネル1コマ分のプロンプトを生成します。
func (pb *ImagePromptBuilder) BuildPanel(profile domain.CharacterProfile, panel domain.Panel, chars []domain.GeneratedCharacter) (string, error) {
	visuals, err := json.MarshalIndent(panel.Visuals, "", "  ")
	if err != nil {
		return "", fmt.Errorf("パネルのビジュアル情報のJSON変換に失敗しました: %w", err)
	}
	textual, err := json.MarshalIndent(panel.Textual, "", "  ")
	if err != nil {
		return "", fmt.Errorf("パネルのテキスト情報のJSON変換に失敗しました: %w", err)
	}
	auditory, err := json.MarshalIndent(panel.Auditory, "", "  ")
	if err != nil {
		return "", fmt.Errorf("パネルの効果音情報のJSON変換に失敗しました: %w", err)
	}

	var refs strings.Builder
	names := make([]string, 0, len(chars))
	for _, c := range chars {
		tags := c.ConsistencyTags
		if tags == "" {
			tags = c.Description
		}
		// SUBJECT [名前] の形式でAIにアイデンティティを固定させるのだ
		refs.WriteString(fmt.Sprintf("- SUBJECT [%s]: %s\n", c.Name, tags))
		names = append(names, c.Name)
	}
	list := "no characters (environment only)"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	charRefs := strings.TrimSpace(refs.String())
	if charRefs == "" {
		charRefs = "None."
	}

	return pb.build(ModePanel, TemplateData{
		ArtStyle:            profile.ArtStyle,
		CharacterReferences: charRefs,
		CharacterList:       list,
		PanelVisuals:        string(visuals),
		PanelTextual:        string(textual),
		PanelAuditory:       string(auditory),
	})
}

func (pb *ImagePromptBuilder) build(mode string, data TemplateData) (string, error) {
	prompt, err := pb.builder.Build(mode, data)
	if err != nil {
		return "", err
	}
	if pb.defaultSuffix != "" {
		prompt += "\n\n" + pb.defaultSuffix
	}
	return prompt, nil
}
