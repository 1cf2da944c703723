package prompts

import (
	"embed"
)

const (
	ModeAnalyze   = "analyze"
	ModeCast      = "cast"
	ModeBlueprint = "blueprint"
	ModeScript    = "script"
	ModePolish    = "polish"
	ModeNarrate   = "narrate"
	ModeVerify    = "verify"
	ModePortrait  = "portrait"
	ModeScene     = "scene"
	ModeCover     = "cover"
	ModePanel     = "panel"
)

// TemplateData はプロンプトテンプレートに渡すデータ構造です。
// モードごとに必要なフィールドだけが参照されます。
type TemplateData struct {
	ArtStyle               string
	ConsistencyTags        string
	ProtagonistDescription string
	CastSize               int
	CharactersDescription  string
	Blueprint              string // JSON
	Outline                string // JSON
	Panel                  string // JSON
	Voices                 string

	CharacterName        string
	CharacterDescription string
	ShotDescription      string

	Location               string
	TimeOfDay              string
	SettingDescription     string
	PerspectiveDescription string

	Title   string
	Logline string

	CharacterReferences string
	CharacterList       string
	PanelVisuals        string // JSON
	PanelTextual        string // JSON
	PanelAuditory       string // JSON
}

//go:embed templates/*.md
var templateFS embed.FS

// allTemplates はモードとテンプレートファイルを紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModeAnalyze:   "templates/analyze.md",
	ModeCast:      "templates/cast.md",
	ModeBlueprint: "templates/blueprint.md",
	ModeScript:    "templates/script.md",
	ModePolish:    "templates/polish.md",
	ModeNarrate:   "templates/narrate.md",
	ModeVerify:    "templates/verify.md",
	ModePortrait:  "templates/portrait.md",
	ModeScene:     "templates/scene.md",
	ModeCover:     "templates/cover.md",
	ModePanel:     "templates/panel.md",
}
