// Package publisher は完成したコミックを画像と Markdown/HTML として書き出します。
package publisher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/shouni/go-text-format/pkg/md2htmlrunner"
	"github.com/shouni/go-utils/urlpath"
)

// OutputWriter はデータを外部ストレージ（ローカルまたは GCS）に保存するためのインターフェースです。
type OutputWriter interface {
	Write(ctx context.Context, path string, r io.Reader, contentType string) error
}

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir string
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	MarkdownPath  string   // 生成された comic.md のパス
	NarrativePath string   // 地の文がある場合の story.md のパス
	HTMLPath      string   // 生成された HTML のパス
	ImagePaths    []string // 保存された全画像のパスリスト
}

const (
	DefaultComicFileName     = "comic.md"
	DefaultNarrativeFileName = "story.md"
	DefaultImageDirName      = "images"

	evenPanelTail        = "top"
	evenPanelBottom      = "10%"
	evenPanelLeft        = "10%"
	oddPanelTail         = "bottom"
	oddPanelTop          = "10%"
	oddPanelRight        = "10%"
	defaultNarrationName = "narration"
)

// ComicPublisher は成果物の永続化とフォーマット変換を担います。
type ComicPublisher struct {
	writer     OutputWriter
	htmlRunner md2htmlrunner.Runner
}

// NewComicPublisher は ComicPublisher を生成します。htmlRunner が nil の場合は HTML 変換を行いません。
func NewComicPublisher(writer OutputWriter, htmlRunner md2htmlrunner.Runner) (*ComicPublisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("writer は必須です")
	}
	return &ComicPublisher{
		writer:     writer,
		htmlRunner: htmlRunner,
	}, nil
}

// Publish はパネル画像の保存、Markdown の構築、HTML 変換を一括して実行するのだ！
// パネルは台本の順序（表紙が先頭）で並べ、まだ画像のないパネルは書き出しません。
func (p *ComicPublisher) Publish(ctx context.Context, outline domain.StoryOutline, panels []domain.GeneratedPanel, opts Options) (PublishResult, error) {
	result := PublishResult{}

	markdownPath, err := urlpath.ResolveOutputPath(opts.OutputDir, DefaultComicFileName)
	if err != nil {
		return result, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
	}
	result.MarkdownPath = markdownPath

	imgDir, err := urlpath.ResolveOutputPath(opts.OutputDir, DefaultImageDirName)
	if err != nil {
		return result, fmt.Errorf("画像ディレクトリの解決に失敗しました: %w", err)
	}

	byKey := make(map[domain.PanelKey]domain.GeneratedPanel, len(panels))
	for _, gp := range panels {
		byKey[gp.Key()] = gp
	}

	ordered := make([]domain.GeneratedPanel, 0, len(panels))
	relPaths := make([]string, 0, len(panels))
	for _, panel := range outline.Panels {
		gp, ok := byKey[panel.Key()]
		if !ok || gp.Image.IsEmpty() {
			continue
		}
		name := ImageFileName(gp.Key(), gp.Image)
		fullPath, err := urlpath.ResolveOutputPath(imgDir, name)
		if err != nil {
			return result, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		if err := p.writer.Write(ctx, fullPath, bytes.NewReader(gp.Image.Data), gp.Image.MIMEType); err != nil {
			return result, fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
		}
		result.ImagePaths = append(result.ImagePaths, fullPath)
		ordered = append(ordered, gp)
		relPaths = append(relPaths, path.Join(DefaultImageDirName, name))
	}

	content := BuildMarkdown(outline, ordered, relPaths)
	if err := p.writer.Write(ctx, markdownPath, strings.NewReader(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}

	if strings.TrimSpace(outline.Narrative) != "" {
		narrativePath, err := urlpath.ResolveOutputPath(opts.OutputDir, DefaultNarrativeFileName)
		if err != nil {
			return result, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		story := fmt.Sprintf("# %s\n\n%s\n", outline.Title, strings.TrimSpace(outline.Narrative))
		if err := p.writer.Write(ctx, narrativePath, strings.NewReader(story), "text/markdown; charset=utf-8"); err != nil {
			return result, fmt.Errorf("地の文の書き込みに失敗しました: %w", err)
		}
		result.NarrativePath = narrativePath
	}

	if p.htmlRunner != nil {
		slog.InfoContext(ctx, "Webtoon HTMLに変換します", "title", outline.Title)
		htmlBuffer, err := p.htmlRunner.Run(ctx, outline.Title, []byte(content))
		if err != nil {
			return result, fmt.Errorf("HTMLの変換に失敗しました: %w", err)
		}
		htmlPath := strings.TrimSuffix(markdownPath, path.Ext(markdownPath)) + ".html"
		if err := p.writer.Write(ctx, htmlPath, htmlBuffer, "text/html; charset=utf-8"); err != nil {
			return result, fmt.Errorf("HTMLファイルの書き込みに失敗しました: %w", err)
		}
		result.HTMLPath = htmlPath
	}

	slog.InfoContext(ctx, "コミックを書き出しました", "markdown", markdownPath, "images", len(result.ImagePaths))
	return result, nil
}

// ImageFileName はパネル画像のファイル名を返します。見開きは page_3_4 になります。
func ImageFileName(key domain.PanelKey, img domain.Image) string {
	ext := "png"
	if img.MIMEType == "image/jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("page_%s_panel_%d.%s", key.Page.PathSegment(), key.Panel, ext)
}

// BuildMarkdown は Webtoon 形式の Markdown を構築します。
// 話者名は CSS クラスとして安全に使えるようハッシュ化します。
func BuildMarkdown(outline domain.StoryOutline, panels []domain.GeneratedPanel, imagePaths []string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", outline.Title))
	if prologue := strings.TrimSpace(outline.Prologue); prologue != "" {
		sb.WriteString(fmt.Sprintf("> %s\n\n", prologue))
	}

	h := sha256.New()
	for i, gp := range panels {
		sb.WriteString(fmt.Sprintf("## Panel: %s\n", imagePaths[i]))
		layout := "standard"
		if gp.IsLandscape() {
			layout = "wide"
		}
		sb.WriteString(fmt.Sprintf("- layout: %s\n", layout))

		speaker, text, pos := panelText(gp.Panel)
		if text == "" {
			sb.WriteString("- type: none\n\n")
			continue
		}

		h.Reset()
		h.Write([]byte(speaker))
		sb.WriteString(fmt.Sprintf("- speaker: speaker-%s\n", hex.EncodeToString(h.Sum(nil))[:10]))
		sb.WriteString(fmt.Sprintf("- text: %s\n", text))
		sb.WriteString(dialogueStyle(i, pos))
		sb.WriteString("\n")
	}
	return sb.String()
}

// panelText は吹き出しに載せる話者・本文・位置を返します。
// セリフがなければキャプションをナレーションとして使います。
func panelText(p domain.Panel) (string, string, *domain.Position) {
	if len(p.Textual.Dialogue) > 0 {
		first := p.Textual.Dialogue[0]
		lines := make([]string, 0, len(p.Textual.Dialogue))
		for _, d := range p.Textual.Dialogue {
			if c := strings.TrimSpace(d.Content); c != "" {
				lines = append(lines, c)
			}
		}
		speaker := first.Character
		if speaker == "" {
			speaker = defaultNarrationName
		}
		pos := first.Position
		return speaker, strings.Join(lines, " "), &pos
	}
	if p.Textual.Caption != nil && strings.TrimSpace(p.Textual.Caption.Content) != "" {
		return defaultNarrationName, strings.TrimSpace(p.Textual.Caption.Content), nil
	}
	return "", "", nil
}

// dialogueStyle は吹き出しの配置を返します。座標がない場合は交互のデフォルト配置にします。
func dialogueStyle(idx int, pos *domain.Position) string {
	if pos != nil && (pos.X > 0 || pos.Y > 0) {
		tail := "bottom"
		if pos.Y > 50 {
			tail = "top"
		}
		return fmt.Sprintf("- tail: %s\n- top: %.0f%%\n- left: %.0f%%\n", tail, pos.Y, pos.X)
	}
	if idx%2 == 0 {
		return fmt.Sprintf("- tail: %s\n- bottom: %s\n- left: %s\n", evenPanelTail, evenPanelBottom, evenPanelLeft)
	}
	return fmt.Sprintf("- tail: %s\n- top: %s\n- right: %s\n", oddPanelTail, oddPanelTop, oddPanelRight)
}
