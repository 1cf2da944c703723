package adapters

import (
	"context"
	"sync"

	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// --- Mocks ---

type geminiResponse = gemini.Response

type generateCall struct {
	model string
	parts []*genai.Part
	opts  gemini.GenerateOptions
}

type mockAIClient struct {
	mu        sync.Mutex
	calls     []generateCall
	responses []*geminiResponse
	err       error
}

func (m *mockAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generateCall{model: model, parts: parts, opts: opts})
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &gemini.Response{RawResponse: &genai.GenerateContentResponse{}}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func textResponse(text string) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: text}}},
				FinishReason: genai.FinishReasonStop,
			}},
		},
	}
}

func finishResponse(reason genai.FinishReason, parts ...*genai.Part) *gemini.Response {
	return &gemini.Response{
		RawResponse: &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: parts},
				FinishReason: reason,
			}},
		},
	}
}

func imageResponse(data []byte) *gemini.Response {
	return finishResponse(genai.FinishReasonStop, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}})
}

func newTestAdapter(client *mockAIClient) *GeminiAdapter {
	a, err := New(Args{
		AIClient:      client,
		PromptBuilder: prompts.MustNewTextPromptBuilder(),
		TextModel:     "text-model",
		ImageModel:    "image-model",
	})
	if err != nil {
		panic(err)
	}
	return a
}
