package publisher

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	files        map[string]string
	contentTypes map[string]string
	failOn       string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{files: map[string]string{}, contentTypes: map[string]string{}}
}

func (w *fakeWriter) Write(ctx context.Context, path string, r io.Reader, contentType string) error {
	if w.failOn != "" && strings.HasSuffix(path, w.failOn) {
		return errors.New("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.files[path] = string(data)
	w.contentTypes[path] = contentType
	return nil
}

func testOutline() domain.StoryOutline {
	return domain.StoryOutline{
		Title:    "Last Bell",
		Prologue: "The harbor never sleeps.",
		Panels: []domain.Panel{
			{PageNumber: domain.CoverPage, PanelNumber: 1},
			{
				PageNumber: 1, PanelNumber: 1,
				Textual: domain.Textual{Dialogue: []domain.DialogueLine{
					{Character: "Rook", Content: "Too quiet."},
					{Character: "Rook", Content: "Stay close."},
				}},
			},
			{
				PageNumber: 1, PanelNumber: 2,
				Textual: domain.Textual{Caption: &domain.Caption{Content: "Midnight."}},
			},
			{
				PageNumber: domain.CenterfoldPage, PanelNumber: 1,
				Textual: domain.Textual{Dialogue: []domain.DialogueLine{
					{Character: "Pike", Content: "Now!", Position: domain.Position{X: 30, Y: 70}},
				}},
			},
		},
	}
}

func generated(o domain.StoryOutline) []domain.GeneratedPanel {
	panels := make([]domain.GeneratedPanel, 0, len(o.Panels))
	// 順序を崩して渡しても台本の順序で並ぶことを確認するため逆順にする
	for i := len(o.Panels) - 1; i >= 0; i-- {
		panels = append(panels, domain.GeneratedPanel{
			Panel: o.Panels[i],
			Image: domain.Image{Data: []byte("img"), MIMEType: "image/png"},
		})
	}
	return panels
}

func TestNewComicPublisher(t *testing.T) {
	_, err := NewComicPublisher(nil, nil)
	assert.Error(t, err)

	p, err := NewComicPublisher(newFakeWriter(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("画像とMarkdownを台本の順序で書き出すこと", func(t *testing.T) {
		w := newFakeWriter()
		p, err := NewComicPublisher(w, nil)
		require.NoError(t, err)

		outline := testOutline()
		res, err := p.Publish(ctx, outline, generated(outline), Options{OutputDir: "out"})
		require.NoError(t, err)

		assert.Equal(t, filepath.Join("out", "comic.md"), res.MarkdownPath)
		assert.Empty(t, res.HTMLPath, "htmlRunner がない場合は HTML を書き出さないこと")
		assert.Empty(t, res.NarrativePath)
		assert.Equal(t, []string{
			filepath.Join("out", "images", "page_0_panel_1.png"),
			filepath.Join("out", "images", "page_1_panel_1.png"),
			filepath.Join("out", "images", "page_1_panel_2.png"),
			filepath.Join("out", "images", "page_3_4_panel_1.png"),
		}, res.ImagePaths)
		assert.Equal(t, "image/png", w.contentTypes[res.ImagePaths[0]])

		md := w.files[res.MarkdownPath]
		assert.Equal(t, "text/markdown; charset=utf-8", w.contentTypes[res.MarkdownPath])
		assert.True(t, strings.HasPrefix(md, "# Last Bell\n\n> The harbor never sleeps.\n"))
		assert.Less(t, strings.Index(md, "images/page_0_panel_1.png"), strings.Index(md, "images/page_1_panel_1.png"))
		assert.Contains(t, md, "- text: Too quiet. Stay close.\n")
		assert.Contains(t, md, "- text: Midnight.\n")
		assert.Contains(t, md, "## Panel: images/page_3_4_panel_1.png\n- layout: wide\n")
		assert.Contains(t, md, "- tail: top\n- top: 70%\n- left: 30%\n", "座標があるセリフはその位置に配置すること")
	})

	t.Run("画像のないパネルは書き出さないこと", func(t *testing.T) {
		w := newFakeWriter()
		p, _ := NewComicPublisher(w, nil)

		outline := testOutline()
		panels := []domain.GeneratedPanel{
			{Panel: outline.Panels[1], Image: domain.Image{Data: []byte("jpg"), MIMEType: "image/jpeg"}},
			{Panel: outline.Panels[2]},
		}
		res, err := p.Publish(ctx, outline, panels, Options{OutputDir: "out"})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join("out", "images", "page_1_panel_1.jpg")}, res.ImagePaths)
		assert.NotContains(t, w.files[res.MarkdownPath], "page_1_panel_2")
	})

	t.Run("地の文がある場合は story.md を書き出すこと", func(t *testing.T) {
		w := newFakeWriter()
		p, _ := NewComicPublisher(w, nil)

		outline := testOutline()
		outline.Narrative = "  Rain fell on the docks.  "
		res, err := p.Publish(ctx, outline, generated(outline), Options{OutputDir: "out"})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("out", "story.md"), res.NarrativePath)
		assert.Equal(t, "# Last Bell\n\nRain fell on the docks.\n", w.files[res.NarrativePath])
	})

	t.Run("書き込みに失敗した場合はエラーを返すこと", func(t *testing.T) {
		w := newFakeWriter()
		w.failOn = "comic.md"
		p, _ := NewComicPublisher(w, nil)

		outline := testOutline()
		_, err := p.Publish(ctx, outline, generated(outline), Options{OutputDir: "out"})
		assert.Error(t, err)
	})
}

func TestBuildMarkdown(t *testing.T) {
	t.Run("同じ話者には同じクラスを割り当てること", func(t *testing.T) {
		outline := domain.StoryOutline{Title: "T"}
		panels := []domain.GeneratedPanel{
			{Panel: domain.Panel{PageNumber: 1, PanelNumber: 1, Textual: domain.Textual{Dialogue: []domain.DialogueLine{{Character: "Rook", Content: "a"}}}}},
			{Panel: domain.Panel{PageNumber: 1, PanelNumber: 2, Textual: domain.Textual{Dialogue: []domain.DialogueLine{{Character: "Rook", Content: "b"}}}}},
			{Panel: domain.Panel{PageNumber: 1, PanelNumber: 3, Textual: domain.Textual{Dialogue: []domain.DialogueLine{{Character: "Pike", Content: "c"}}}}},
		}
		md := BuildMarkdown(outline, panels, []string{"a.png", "b.png", "c.png"})

		var speakers []string
		for _, line := range strings.Split(md, "\n") {
			if strings.HasPrefix(line, "- speaker: ") {
				speakers = append(speakers, line)
			}
		}
		require.Len(t, speakers, 3)
		assert.Equal(t, speakers[0], speakers[1])
		assert.NotEqual(t, speakers[0], speakers[2])
		assert.Len(t, strings.TrimPrefix(speakers[0], "- speaker: speaker-"), 10)
	})

	t.Run("座標がない場合は交互に配置すること", func(t *testing.T) {
		assert.Contains(t, dialogueStyle(0, nil), "- tail: top\n")
		assert.Contains(t, dialogueStyle(1, nil), "- tail: bottom\n")
		assert.Equal(t, dialogueStyle(0, nil), dialogueStyle(0, &domain.Position{}))
	})

	t.Run("文字のないパネルは type: none になること", func(t *testing.T) {
		md := BuildMarkdown(domain.StoryOutline{Title: "T"}, []domain.GeneratedPanel{{Panel: domain.Panel{PageNumber: 1, PanelNumber: 1}}}, []string{"a.png"})
		assert.Contains(t, md, "- type: none\n")
		assert.NotContains(t, md, "- speaker:")
	})
}
