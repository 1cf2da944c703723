package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"google.golang.org/genai"
)

// AnalyzeImage はシード画像からキャラクタープロフィールを抽出します。
func (a *GeminiAdapter) AnalyzeImage(ctx context.Context, img domain.Image) (*domain.CharacterProfile, error) {
	if img.IsEmpty() {
		return nil, fmt.Errorf("解析対象の画像が空です")
	}
	prompt, err := a.buildPrompt(prompts.ModeAnalyze, prompts.TemplateData{})
	if err != nil {
		return nil, err
	}

	var profile domain.CharacterProfile
	parts := []*genai.Part{a.imagePart(ctx, img), prompt}
	if err := a.generateStructured(ctx, "analyzeImage", parts, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GenerateCastConcepts はプロフィールからキャスト全員のコンセプトを一括生成します。
func (a *GeminiAdapter) GenerateCastConcepts(ctx context.Context, profile *domain.CharacterProfile) ([]domain.CharacterConcept, error) {
	if profile == nil {
		return nil, fmt.Errorf("キャラクタープロフィールは必須です")
	}
	prompt, err := a.buildPrompt(prompts.ModeCast, prompts.TemplateData{
		ProtagonistDescription: profile.Description(),
		ConsistencyTags:        profile.ConsistencyTags,
		ArtStyle:               profile.ArtStyle,
		CastSize:               domain.CastSize,
	})
	if err != nil {
		return nil, err
	}

	text, err := a.generateText(ctx, "generateCastConcepts", []*genai.Part{prompt})
	if err != nil {
		return nil, err
	}

	// {"characters": [...]} とトップレベル配列の両方を受け付けるのだ
	var wrapped struct {
		Characters []domain.CharacterConcept `json:"characters"`
	}
	var concepts []domain.CharacterConcept
	if err := decodeStructured(text, &wrapped); err == nil && len(wrapped.Characters) > 0 {
		concepts = wrapped.Characters
	} else {
		var list []domain.CharacterConcept
		if err := decodeStructured(text, &list); err != nil {
			return nil, fmt.Errorf("generateCastConcepts: %w", err)
		}
		concepts = list
	}

	if len(concepts) == 0 {
		return nil, fmt.Errorf("generateCastConcepts: %w (キャラクターが含まれていません)", ErrMalformedResponse)
	}
	if len(concepts) != domain.CastSize {
		slog.WarnContext(ctx, "生成されたキャスト人数が想定と異なります", "expected", domain.CastSize, "actual", len(concepts))
	}
	return concepts, nil
}

// DevelopBlueprint はキャストから物語の設計図を生成します。
func (a *GeminiAdapter) DevelopBlueprint(ctx context.Context, concepts []domain.CharacterConcept) (*domain.StoryDevelopmentPackage, error) {
	prompt, err := a.buildPrompt(prompts.ModeBlueprint, prompts.TemplateData{
		CharactersDescription: domain.CastDescription(concepts),
	})
	if err != nil {
		return nil, err
	}

	var blueprint domain.StoryDevelopmentPackage
	if err := a.generateStructured(ctx, "developBlueprint", []*genai.Part{prompt}, &blueprint); err != nil {
		return nil, err
	}
	return &blueprint, nil
}

// GenerateScript は設計図とキャスト説明からパネル単位の台本を生成します。
func (a *GeminiAdapter) GenerateScript(ctx context.Context, blueprint *domain.StoryDevelopmentPackage, castDescription string) (*domain.StoryOutline, error) {
	if blueprint == nil {
		return nil, fmt.Errorf("ストーリーの設計図は必須です")
	}
	blueprintJSON, err := json.MarshalIndent(blueprint, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("設計図のJSON変換に失敗しました: %w", err)
	}
	prompt, err := a.buildPrompt(prompts.ModeScript, prompts.TemplateData{
		Blueprint:             string(blueprintJSON),
		CharactersDescription: castDescription,
	})
	if err != nil {
		return nil, err
	}

	var outline domain.StoryOutline
	if err := a.generateStructured(ctx, "generateScript", []*genai.Part{prompt}, &outline); err != nil {
		return nil, err
	}
	if len(outline.Panels) == 0 {
		return nil, fmt.Errorf("generateScript: %w (パネルが含まれていません)", ErrMalformedResponse)
	}
	return &outline, nil
}

// PolishDialogue はパネルのセリフをキャラクターの口調に合わせて書き直します。
// 失敗しても上位にエラーを返さず、入力のパネルをそのまま返します。
func (a *GeminiAdapter) PolishDialogue(ctx context.Context, panel domain.Panel, blueprint *domain.StoryDevelopmentPackage) domain.Panel {
	logger := slog.With("panel", panel.Key().String())
	if len(panel.Textual.Dialogue) == 0 {
		return panel
	}

	panelJSON, err := json.Marshal(panel.Textual.Dialogue)
	if err != nil {
		logger.WarnContext(ctx, "セリフのJSON変換に失敗したため元のセリフを使います", "error", err)
		return panel
	}
	prompt, err := a.buildPrompt(prompts.ModePolish, prompts.TemplateData{
		Voices: voicesDescription(blueprint),
		Panel:  string(panelJSON),
	})
	if err != nil {
		logger.WarnContext(ctx, "セリフ推敲のプロンプト生成に失敗したため元のセリフを使います", "error", err)
		return panel
	}

	var polished struct {
		Dialogue []struct {
			Character string `json:"character"`
			Content   string `json:"content"`
		} `json:"dialogue"`
	}
	if err := a.generateStructured(ctx, "polishDialogue", []*genai.Part{prompt}, &polished); err != nil {
		logger.WarnContext(ctx, "セリフ推敲に失敗したため元のセリフを使います", "error", err)
		return panel
	}
	if len(polished.Dialogue) != len(panel.Textual.Dialogue) {
		logger.WarnContext(ctx, "推敲後のセリフ数が一致しないため元のセリフを使います",
			"expected", len(panel.Textual.Dialogue), "actual", len(polished.Dialogue))
		return panel
	}

	out := panel
	out.Textual.Dialogue = make([]domain.DialogueLine, len(panel.Textual.Dialogue))
	copy(out.Textual.Dialogue, panel.Textual.Dialogue)
	for i, line := range polished.Dialogue {
		if content := strings.TrimSpace(line.Content); content != "" {
			out.Textual.Dialogue[i].Content = content
		}
	}
	return out
}

// Narrate は完成した台本を散文の物語に変換します。
func (a *GeminiAdapter) Narrate(ctx context.Context, outline *domain.StoryOutline) (string, error) {
	if outline == nil {
		return "", fmt.Errorf("台本は必須です")
	}
	outlineJSON, err := json.Marshal(outline)
	if err != nil {
		return "", fmt.Errorf("台本のJSON変換に失敗しました: %w", err)
	}
	prompt, err := a.buildPrompt(prompts.ModeNarrate, prompts.TemplateData{Outline: string(outlineJSON)})
	if err != nil {
		return "", err
	}
	return a.generateText(ctx, "narrate", []*genai.Part{prompt})
}

// VerifyConsistency は生成されたパネル画像とキャラクターの参照画像を比較します。
func (a *GeminiAdapter) VerifyConsistency(ctx context.Context, img domain.Image, character domain.GeneratedCharacter) (domain.Verification, error) {
	prompt, err := a.buildPrompt(prompts.ModeVerify, prompts.TemplateData{
		CharacterName:        character.Name,
		CharacterDescription: character.Description,
		ConsistencyTags:      character.ConsistencyTags,
	})
	if err != nil {
		return domain.Verification{}, err
	}

	parts := []*genai.Part{prompt, a.imagePart(ctx, img)}
	for _, ref := range character.ReferenceImages() {
		parts = append(parts, a.imagePart(ctx, ref))
	}

	var v domain.Verification
	if err := a.generateStructured(ctx, "verifyConsistency", parts, &v); err != nil {
		return domain.Verification{}, err
	}
	if !v.Match && strings.TrimSpace(v.Reason) == "" {
		v.Reason = fmt.Sprintf("%s does not match the reference", character.Name)
	}
	return v, nil
}

func voicesDescription(blueprint *domain.StoryDevelopmentPackage) string {
	if blueprint == nil {
		return ""
	}
	var sb strings.Builder
	for _, v := range blueprint.CharacterVoices {
		sb.WriteString(fmt.Sprintf("- %s: %s; %s\n", v.CharacterName, v.SpeechPatterns, v.Vocabulary))
	}
	return strings.TrimSpace(sb.String())
}
