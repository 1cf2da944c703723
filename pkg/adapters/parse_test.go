package adapters

import (
	"errors"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestDecodeStructured(t *testing.T) {
	t.Run("フェンス付きJSONを解析できること", func(t *testing.T) {
		raw := "Here you go:\n```json\n{\"art_style\": \"noir ink\", \"consistency_tags\": \"trench coat\"}\n```"
		var p domain.CharacterProfile
		require.NoError(t, decodeStructured(raw, &p))
		assert.Equal(t, "noir ink", p.ArtStyle)
	})

	t.Run("前後に文章があっても最外のオブジェクトを解析できること", func(t *testing.T) {
		raw := `Sure! {"match": false, "reason": "missing left arm brace"} Hope it helps.`
		var v domain.Verification
		require.NoError(t, decodeStructured(raw, &v))
		assert.False(t, v.Match)
		assert.Equal(t, "missing left arm brace", v.Reason)
	})

	t.Run("YAMLの応答も解析できること", func(t *testing.T) {
		raw := "```yaml\ntitle: Last Bell\nprologue: The city sleeps.\npanels:\n  - page_number: \"3-4\"\n    panel_number: 1\n```"
		var o domain.StoryOutline
		require.NoError(t, decodeStructured(raw, &o))
		assert.Equal(t, "Last Bell", o.Title)
		require.Len(t, o.Panels, 1)
		assert.Equal(t, domain.CenterfoldPage, o.Panels[0].PageNumber)
	})

	t.Run("解析できない応答はErrMalformedResponseになること", func(t *testing.T) {
		var p domain.CharacterProfile
		err := decodeStructured("I cannot help with that.", &p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedResponse))
	})
}

func TestEmptyResponseError(t *testing.T) {
	t.Run("STOPの場合は汎用メッセージ", func(t *testing.T) {
		err := emptyResponseError(genai.FinishReasonStop)
		assert.Equal(t, ErrEmptyResponse, err)
	})

	t.Run("SAFETYの場合は終了理由と安全フィルタの注記を含むこと", func(t *testing.T) {
		err := emptyResponseError(genai.FinishReasonSafety)
		assert.True(t, errors.Is(err, ErrEmptyResponse))
		assert.Contains(t, err.Error(), "SAFETY")
		assert.Contains(t, err.Error(), "安全フィルタ")
	})

	t.Run("MAX_TOKENSの場合は終了理由を含むこと", func(t *testing.T) {
		err := emptyResponseError(genai.FinishReasonMaxTokens)
		assert.Contains(t, err.Error(), "MAX_TOKENS")
		assert.NotContains(t, err.Error(), "安全フィルタ")
	})
}
