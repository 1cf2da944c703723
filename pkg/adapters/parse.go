package adapters

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"
)

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json|yaml|yml)?\\s*(.*\\S)\\s*```")

// responseText は最初の候補からテキストパーツを連結して返します。終了理由も併せて返します。
func responseText(resp *gemini.Response) (string, genai.FinishReason) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return "", ""
	}
	candidate := resp.RawResponse.Candidates[0]
	if candidate == nil {
		return "", ""
	}

	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), candidate.FinishReason
}

// extractStructuredBlock は応答からフェンスブロック、最外の {…} / […]、または全文を取り出します。
func extractStructuredBlock(raw string) string {
	raw = strings.TrimSpace(raw)
	if matches := fencedBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		return matches[1]
	}

	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return raw
	}
	closing := "}"
	if raw[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(raw, closing)
	if end > start {
		return raw[start : end+1]
	}
	return raw
}

// decodeStructured は JSON として解析し、失敗した場合は YAML として解析します。
func decodeStructured(raw string, out any) error {
	body := extractStructuredBlock(raw)

	jsonErr := json.Unmarshal([]byte(body), out)
	if jsonErr == nil {
		return nil
	}

	var generic any
	if err := yaml.Unmarshal([]byte(body), &generic); err == nil {
		switch generic.(type) {
		case map[string]any, []any:
			converted, err := json.Marshal(generic)
			if err == nil && json.Unmarshal(converted, out) == nil {
				return nil
			}
		}
	}

	return fmt.Errorf("%w (応答抜粋: %q): %v", ErrMalformedResponse, truncateString(raw, 200), jsonErr)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
