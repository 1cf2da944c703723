package domain

// StoryDevelopmentPackage は台本に先立つ物語の設計図（ブループリント）です。
type StoryDevelopmentPackage struct {
	Title           string           `json:"title"`
	Logline         string           `json:"logline"`
	Themes          []string         `json:"themes"`
	CharacterArcs   []CharacterArc   `json:"character_arcs"`
	CharacterVoices []CharacterVoice `json:"character_voices"`
	ThreeActOutline []Act            `json:"three_act_outline"`
}

// CharacterArc は主要キャラクターの内面の葛藤と成長の要約です。
type CharacterArc struct {
	CharacterName    string `json:"character_name"`
	InternalConflict string `json:"internal_conflict"`
	ArcSummary       string `json:"arc_summary"`
}

// CharacterVoice はキャラクターごとの話し方の指針です。
type CharacterVoice struct {
	CharacterName  string `json:"character_name"`
	SpeechPatterns string `json:"speech_patterns"`
	Vocabulary     string `json:"vocabulary"`
}

// Act は三幕構成の1幕です。
type Act struct {
	ActNumber int        `json:"act_number"`
	ActTitle  string     `json:"act_title"`
	Summary   string     `json:"summary"`
	KeyScenes []KeyScene `json:"key_scenes"`
}

// KeyScene は幕の中の重要な場面です。
type KeyScene struct {
	SceneTitle     string `json:"scene_title"`
	Description    string `json:"description"`
	PageEstimation string `json:"page_estimation,omitempty"`
}

// StoryOutline はパネル単位の台本です。Narrative は Narrate 工程の成果物です。
type StoryOutline struct {
	Title     string  `json:"title"`
	Prologue  string  `json:"prologue"`
	Panels    []Panel `json:"panels"`
	Narrative string  `json:"narrative,omitempty"`
}

// Keys は台本に含まれるパネルキーを順序通りに返します。
func (o StoryOutline) Keys() []PanelKey {
	keys := make([]PanelKey, 0, len(o.Panels))
	for _, p := range o.Panels {
		keys = append(keys, p.Key())
	}
	return keys
}

// Cover は表紙パネルを返します。
func (o StoryOutline) Cover() (Panel, bool) {
	for _, p := range o.Panels {
		if p.PageNumber == CoverPage {
			return p, true
		}
	}
	return Panel{}, false
}

// Locations は台本に登場するロケーションを正規化キーで重複排除し、初出順に返します。
// 値はプロンプト用に最初に現れたパネルの Setting です。
func (o StoryOutline) Locations() ([]string, map[string]Setting) {
	order := make([]string, 0)
	settings := make(map[string]Setting)
	for _, p := range o.Panels {
		key := LocationKey(p.Visuals.Setting.Location)
		if key == "" {
			continue
		}
		if _, ok := settings[key]; ok {
			continue
		}
		order = append(order, key)
		settings[key] = p.Visuals.Setting
	}
	return order, settings
}

// FilterPages は指定ページ以下のパネルだけを残した台本を返します。
// 表紙は常に残し、見開き（センターフォールド）は除外します。
func (o StoryOutline) FilterPages(maxPage PageNumber) StoryOutline {
	filtered := o
	filtered.Panels = make([]Panel, 0, len(o.Panels))
	for _, p := range o.Panels {
		if p.PageNumber == CoverPage || (p.PageNumber > CoverPage && p.PageNumber <= maxPage) {
			filtered.Panels = append(filtered.Panels, p)
		}
	}
	return filtered
}

// GeneratedPanel は画像が付与されたパネルです。
type GeneratedPanel struct {
	Panel
	Image Image `json:"-"`
}
