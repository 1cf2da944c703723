package adapters

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNew(t *testing.T) {
	_, err := New(Args{PromptBuilder: prompts.MustNewTextPromptBuilder(), TextModel: "t", ImageModel: "i"})
	assert.Error(t, err, "aiClient がない場合はエラーになるべき")

	_, err = New(Args{AIClient: &mockAIClient{}, TextModel: "t", ImageModel: "i"})
	assert.Error(t, err, "promptBuilder がない場合はエラーになるべき")
}

func TestGeminiAdapter_AnalyzeImage(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: プロフィールが返されること", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{textResponse(`{"art_style":"noir ink","consistency_tags":"trench coat, scar"}`)}}
		a := newTestAdapter(client)

		p, err := a.AnalyzeImage(ctx, domain.Image{Data: []byte("png"), MIMEType: "image/png"})
		require.NoError(t, err)
		assert.Equal(t, "noir ink", p.ArtStyle)
		require.Len(t, client.calls, 1)
		assert.Equal(t, "text-model", client.calls[0].model)
		assert.NotNil(t, client.calls[0].parts[0].InlineData, "画像パーツが先頭に含まれるべき")
	})

	t.Run("異常系: 空の応答はErrEmptyResponseになること", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{finishResponse(genai.FinishReasonSafety)}}
		a := newTestAdapter(client)

		_, err := a.AnalyzeImage(ctx, domain.Image{Data: []byte("png"), MIMEType: "image/png"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyResponse))
		assert.Contains(t, err.Error(), "SAFETY")
	})
}

func TestGeminiAdapter_GenerateCastConcepts(t *testing.T) {
	ctx := context.Background()
	profile := &domain.CharacterProfile{ArtStyle: "noir ink"}

	t.Run("charactersラッパーを解析できること", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{textResponse(`{"characters":[{"role":"Protagonist","name":"Rook","description":"brawler"}]}`)}}
		concepts, err := newTestAdapter(client).GenerateCastConcepts(ctx, profile)
		require.NoError(t, err)
		require.Len(t, concepts, 1)
		assert.Equal(t, "Rook", concepts[0].Name)
	})

	t.Run("トップレベル配列も解析できること", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{textResponse(`[{"role":"Antagonist","name":"Vesper","description":"mask"}]`)}}
		concepts, err := newTestAdapter(client).GenerateCastConcepts(ctx, profile)
		require.NoError(t, err)
		require.Len(t, concepts, 1)
		assert.Equal(t, "Vesper", concepts[0].Name)
	})
}

func TestGeminiAdapter_PolishDialogue(t *testing.T) {
	ctx := context.Background()
	panel := domain.Panel{
		PageNumber:  1,
		PanelNumber: 2,
		Textual: domain.Textual{Dialogue: []domain.DialogueLine{
			{Character: "Rook", Content: "Go away.", Position: domain.Position{X: 10, Y: 20}},
		}},
	}

	t.Run("推敲されたセリフで内容だけが置き換わること", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{textResponse(`{"dialogue":[{"character":"Rook","content":"Leave. Now."}]}`)}}
		out := newTestAdapter(client).PolishDialogue(ctx, panel, &domain.StoryDevelopmentPackage{})
		assert.Equal(t, "Leave. Now.", out.Textual.Dialogue[0].Content)
		assert.Equal(t, 10.0, out.Textual.Dialogue[0].Position.X)
		assert.Equal(t, "Go away.", panel.Textual.Dialogue[0].Content, "入力のパネルは変更されないべき")
	})

	t.Run("失敗した場合は元のパネルを返すこと", func(t *testing.T) {
		client := &mockAIClient{err: errors.New("network down")}
		out := newTestAdapter(client).PolishDialogue(ctx, panel, nil)
		assert.Equal(t, panel, out)
	})

	t.Run("セリフのないパネルは呼び出しを行わないこと", func(t *testing.T) {
		client := &mockAIClient{}
		newTestAdapter(client).PolishDialogue(ctx, domain.Panel{PageNumber: 1, PanelNumber: 1}, nil)
		assert.Empty(t, client.calls)
	})
}

func TestGeminiAdapter_VerifyConsistency(t *testing.T) {
	client := &mockAIClient{responses: []*geminiResponse{textResponse(`{"match": false, "reason": "missing left arm brace"}`)}}
	a := newTestAdapter(client)

	char := domain.GeneratedCharacter{
		CharacterConcept: domain.CharacterConcept{Name: "Rook"},
		Images:           map[domain.Shot]domain.Image{domain.ShotFull: {Data: []byte("ref"), MIMEType: "image/png"}},
	}
	v, err := a.VerifyConsistency(context.Background(), domain.Image{Data: []byte("panel"), MIMEType: "image/png"}, char)
	require.NoError(t, err)
	assert.False(t, v.Match)
	assert.Equal(t, "missing left arm brace", v.Reason)
	assert.Len(t, client.calls[0].parts, 3, "プロンプト + 生成画像 + 参照画像1枚")
}

func TestGeminiAdapter_GenerateImage(t *testing.T) {
	ctx := context.Background()

	t.Run("正常系: 最初のインライン画像を返すこと", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{imageResponse([]byte("img"))}}
		img, err := newTestAdapter(client).GenerateImage(ctx, domain.ImageRequest{
			Prompt:         "draw",
			References:     []domain.Image{{Data: []byte("ref"), MIMEType: "image/jpeg"}, {}},
			AspectRatio:    "3:4",
			CorrectionNote: "missing left arm brace",
		})
		require.NoError(t, err)
		assert.Equal(t, []byte("img"), img.Data)

		call := client.calls[0]
		assert.Equal(t, "image-model", call.model)
		assert.Equal(t, "3:4", call.opts.AspectRatio)
		require.Len(t, call.parts, 2, "空の参照画像は送信されないべき")
		text := call.parts[1].Text
		assert.Contains(t, text, "missing left arm brace")
		assert.True(t, strings.HasSuffix(text, "aspect ratio of 3:4."))
	})

	t.Run("SAFETYで終了した場合はErrImageGenerationBlocked", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{finishResponse(genai.FinishReasonSafety)}}
		_, err := newTestAdapter(client).GenerateImage(ctx, domain.ImageRequest{Prompt: "draw"})
		assert.True(t, errors.Is(err, ErrImageGenerationBlocked))
	})

	t.Run("画像の代わりにテキストが返った場合はその説明を含むErrImageGenerationFailed", func(t *testing.T) {
		client := &mockAIClient{responses: []*geminiResponse{finishResponse(genai.FinishReasonStop, &genai.Part{Text: "I can only draw one character."})}}
		_, err := newTestAdapter(client).GenerateImage(ctx, domain.ImageRequest{Prompt: "draw"})
		assert.True(t, errors.Is(err, ErrImageGenerationFailed))
		assert.Contains(t, err.Error(), "I can only draw one character.")
	})

	t.Run("通信エラーはErrImageGenerationFailedでラップされること", func(t *testing.T) {
		cause := errors.New("deadline exceeded")
		client := &mockAIClient{err: cause}
		_, err := newTestAdapter(client).GenerateImage(ctx, domain.ImageRequest{Prompt: "draw"})
		assert.True(t, errors.Is(err, ErrImageGenerationFailed))
		assert.True(t, errors.Is(err, cause))
	})
}
