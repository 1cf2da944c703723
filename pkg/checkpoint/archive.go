// Package checkpoint はパイプラインの状態を zip アーカイブとして書き出し、復元します。
package checkpoint

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/shouni/gemini-image-kit/pkg/imgutil"
)

const (
	// MetadataFile はアーカイブ内の構造化ドキュメントのファイル名です。
	MetadataFile = "comic_metadata.json"
	// FormatVersion はメタデータの形式バージョンです。
	FormatVersion = 1

	jpegQuality = 90

	portraitDir = "portraits"
	sceneDir    = "scenes"
	panelDir    = "panels"
	seedDir     = "seed"
)

// ErrMissingMetadata はアーカイブにメタデータが含まれていないことを表します。
var ErrMissingMetadata = errors.New("アーカイブに " + MetadataFile + " が含まれていません")

var (
	pathSegmentReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	archiveNameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "\"", "", "?", "", "*", "")
)

type rosterEntry struct {
	Role            string                 `json:"role"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	ConsistencyTags string                 `json:"consistencyTags,omitempty"`
	Images          map[domain.Shot]string `json:"images"`
}

type panelEntry struct {
	domain.Panel
	ImagePath string `json:"imagePath"`
}

// metadata は comic_metadata.json の形式です。画像はアーカイブ内の相対パスで参照します。
type metadata struct {
	Version    int            `json:"version"`
	RunID      string         `json:"runId"`
	FromSample bool           `json:"fromSample"`
	Stage      pipeline.Stage `json:"stage"`
	Status     string         `json:"status"`
	Progress   int            `json:"progress"`
	Error      string         `json:"error,omitempty"`

	CharacterProfile        *domain.CharacterProfile        `json:"characterProfile,omitempty"`
	CharacterConcepts       []domain.CharacterConcept       `json:"characterConcepts,omitempty"`
	StoryDevelopmentPackage *domain.StoryDevelopmentPackage `json:"storyDevelopmentPackage,omitempty"`
	Story                   *domain.StoryOutline            `json:"story,omitempty"`

	CharacterRoster  []rosterEntry                            `json:"characterRoster,omitempty"`
	SceneImages      map[string]map[domain.Perspective]string `json:"sceneImages,omitempty"`
	GeneratedPanels  []panelEntry                             `json:"generatedPanels,omitempty"`
	InitialImagePath string                                   `json:"initialImagePath,omitempty"`
}

// PortraitPath はキャラクターのショット画像のアーカイブ内パスを返します。
func PortraitPath(name string, shot domain.Shot) string {
	return path.Join(portraitDir, pathSegment(name), string(shot)+".jpg")
}

// ScenePath は背景画像のアーカイブ内パスを返します。
func ScenePath(locationKey string, p domain.Perspective) string {
	return path.Join(sceneDir, pathSegment(locationKey), string(p)+".jpg")
}

// PanelPath はパネル画像のアーカイブ内パスを返します。見開きは page_3_4 になります。
func PanelPath(key domain.PanelKey) string {
	return path.Join(panelDir, fmt.Sprintf("page_%s_panel_%d.jpg", key.Page.PathSegment(), key.Panel))
}

// ArchiveName はアーカイブのファイル名を返します。
// 完成前の状態は "<タイトル>_progress.zip"、完成後は "<タイトル>.zip" になります。
func ArchiveName(s pipeline.State) string {
	title := "comic"
	switch {
	case s.Outline != nil && strings.TrimSpace(s.Outline.Title) != "":
		title = s.Outline.Title
	case s.Blueprint != nil && strings.TrimSpace(s.Blueprint.Title) != "":
		title = s.Blueprint.Title
	}
	name := archiveNameReplacer.Replace(strings.TrimSpace(title))
	if !s.Complete() {
		name += "_progress"
	}
	return name + ".zip"
}

func seedPath(img domain.Image) string {
	return path.Join(seedDir, "initial."+extension(img.MIMEType))
}

func pathSegment(s string) string {
	return pathSegmentReplacer.Replace(strings.TrimSpace(s))
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	return "bin"
}

// Export は状態をアーカイブに書き出します。介入待ちの間でも呼び出せます。
// 画像は JPEG に変換し、変換できない場合は元のバイト列をそのまま格納します。
// 空の画像はファイルを書き出さず、パスだけをメタデータに記録します。
func Export(s pipeline.State) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w := &archiveWriter{zw: zw}

	meta := metadata{
		Version:                 FormatVersion,
		RunID:                   s.RunID,
		FromSample:              s.FromSample,
		Stage:                   s.Stage,
		Status:                  s.Status,
		Progress:                s.Progress,
		Error:                   s.Err,
		CharacterProfile:        s.Profile,
		CharacterConcepts:       s.Concepts,
		StoryDevelopmentPackage: s.Blueprint,
		Story:                   s.Outline,
	}

	for _, c := range s.Roster {
		entry := rosterEntry{
			Role:            c.Role,
			Name:            c.Name,
			Description:     c.Description,
			ConsistencyTags: c.ConsistencyTags,
			Images:          make(map[domain.Shot]string, len(c.Images)),
		}
		for _, shot := range domain.ShotKeys {
			img, ok := c.Images[shot]
			if !ok {
				continue
			}
			p := PortraitPath(c.Name, shot)
			if err := w.writeJPEG(p, img); err != nil {
				return nil, err
			}
			entry.Images[shot] = p
		}
		meta.CharacterRoster = append(meta.CharacterRoster, entry)
	}

	if len(s.Scenes) > 0 {
		meta.SceneImages = make(map[string]map[domain.Perspective]string, len(s.Scenes))
		for loc, set := range s.Scenes {
			paths := make(map[domain.Perspective]string, len(set))
			for _, p := range set.Available() {
				fp := ScenePath(loc, p)
				if err := w.writeJPEG(fp, set[p]); err != nil {
					return nil, err
				}
				paths[p] = fp
			}
			meta.SceneImages[loc] = paths
		}
	}

	for _, gp := range s.Panels {
		p := PanelPath(gp.Key())
		if err := w.writeJPEG(p, gp.Image); err != nil {
			return nil, err
		}
		meta.GeneratedPanels = append(meta.GeneratedPanels, panelEntry{Panel: gp.Panel, ImagePath: p})
	}

	if !s.SeedImage.IsEmpty() {
		p := seedPath(s.SeedImage)
		if err := w.writeRaw(p, s.SeedImage.Data); err != nil {
			return nil, err
		}
		meta.InitialImagePath = p
	}

	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("メタデータのJSON変換に失敗しました: %w", err)
	}
	if err := w.writeRaw(MetadataFile, doc); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("アーカイブの書き出しに失敗しました: %w", err)
	}

	slog.Info("チェックポイントを書き出しました",
		"run_id", s.RunID, "stage", s.Stage, "panels", len(s.Panels), "bytes", buf.Len())
	return buf.Bytes(), nil
}

type archiveWriter struct {
	zw *zip.Writer
}

func (w *archiveWriter) writeJPEG(name string, img domain.Image) error {
	if img.IsEmpty() {
		return nil
	}
	data := img.Data
	if img.MIMEType != "image/jpeg" {
		if jpg, err := imgutil.CompressToJPEG(img.Data, jpegQuality); err == nil {
			data = jpg
		} else {
			slog.Warn("JPEGへの変換に失敗したため元の画像を格納します", "path", name, "error", err)
		}
	}
	return w.writeRaw(name, data)
}

func (w *archiveWriter) writeRaw(name string, data []byte) error {
	f, err := w.zw.Create(name)
	if err != nil {
		return fmt.Errorf("アーカイブへのエントリ作成に失敗しました (%s): %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("アーカイブへの書き込みに失敗しました (%s): %w", name, err)
	}
	return nil
}

// Restore はアーカイブから状態を復元します。
// メタデータ以外の欠損には寛容で、見つからない画像は空の画像として扱います。
func Restore(data []byte) (pipeline.State, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pipeline.State{}, fmt.Errorf("アーカイブの読み込みに失敗しました: %w", err)
	}
	r := &archiveReader{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		r.files[f.Name] = f
	}

	raw, ok, err := r.read(MetadataFile)
	if err != nil {
		return pipeline.State{}, err
	}
	if !ok {
		return pipeline.State{}, ErrMissingMetadata
	}
	var meta metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return pipeline.State{}, fmt.Errorf("メタデータの解析に失敗しました: %w", err)
	}

	s := pipeline.State{
		RunID:      meta.RunID,
		Stage:      meta.Stage,
		Status:     meta.Status,
		Progress:   meta.Progress,
		Err:        meta.Error,
		FromSample: meta.FromSample,
		Profile:    meta.CharacterProfile,
		Concepts:   meta.CharacterConcepts,
		Blueprint:  meta.StoryDevelopmentPackage,
		Outline:    meta.Story,
		Scenes:     make(domain.SceneRegistry),
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	switch s.Stage {
	case "":
		s.Stage = pipeline.StageIdle
	case pipeline.StageAwaitingIntervention:
		s.Stage = pipeline.StagePanels
	}

	for _, e := range meta.CharacterRoster {
		c := domain.GeneratedCharacter{
			CharacterConcept: domain.CharacterConcept{
				Role:            e.Role,
				Name:            e.Name,
				Description:     e.Description,
				ConsistencyTags: e.ConsistencyTags,
			},
			Images: make(map[domain.Shot]domain.Image, len(e.Images)),
		}
		for shot, p := range e.Images {
			c.Images[shot] = r.image(p)
		}
		s.Roster = append(s.Roster, c)
	}
	if len(s.Concepts) == 0 && len(s.Roster) > 0 {
		s.Concepts = s.Roster.Concepts()
		slog.Info("キャスト情報がないためロスターから復元しました", "count", len(s.Concepts))
	}

	for loc, set := range meta.SceneImages {
		for p, fp := range set {
			s.Scenes.Put(loc, p, r.image(fp))
		}
	}

	for _, e := range meta.GeneratedPanels {
		s.Panels = append(s.Panels, domain.GeneratedPanel{Panel: e.Panel, Image: r.image(e.ImagePath)})
	}

	s.SeedImage = r.image(meta.InitialImagePath)
	if s.SeedImage.IsEmpty() {
		if protagonist, ok := s.Roster.Protagonist(); ok {
			s.SeedImage = protagonist.Reference()
		}
	}

	slog.Info("チェックポイントを復元しました",
		"run_id", s.RunID, "stage", s.Stage, "roster", len(s.Roster), "panels", len(s.Panels))
	return s, nil
}

type archiveReader struct {
	files map[string]*zip.File
}

func (r *archiveReader) read(name string) ([]byte, bool, error) {
	f, ok := r.files[name]
	if !ok {
		return nil, false, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, false, fmt.Errorf("アーカイブのエントリを開けませんでした (%s): %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("アーカイブのエントリを読み込めませんでした (%s): %w", name, err)
	}
	return data, true, nil
}

// image は参照パスの画像を読み込みます。欠損や読み込み失敗は空の画像になります。
func (r *archiveReader) image(name string) domain.Image {
	if name == "" {
		return domain.Image{}
	}
	data, ok, err := r.read(name)
	if err != nil {
		slog.Warn("画像を読み込めなかったため空の画像で置き換えます", "path", name, "error", err)
		return domain.Image{}
	}
	if !ok || len(data) == 0 {
		return domain.Image{}
	}
	return domain.NewImage(data)
}
