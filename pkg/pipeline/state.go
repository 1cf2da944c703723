package pipeline

import (
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/google/uuid"
)

// Stage はパイプラインの現在の工程です。
type Stage string

const (
	StageIdle                 Stage = "idle"
	StageAnalyze              Stage = "analyze"
	StageCastConcepts         Stage = "cast_concepts"
	StageBlueprint            Stage = "blueprint"
	StageScript               Stage = "script"
	StagePortraits            Stage = "portraits"
	StageScenes               Stage = "scenes"
	StagePanels               Stage = "panels"
	StageAwaitingIntervention Stage = "awaiting_intervention"
	StageFinalize             Stage = "finalize"
)

// Choice は介入に対する人の判断です。
type Choice string

const (
	ChoiceAccept Choice = "accept"
	ChoiceReject Choice = "reject"
)

// ParseChoice は文字列から Choice を解釈します。"retry" は reject の別名として扱います。
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ChoiceAccept):
		return ChoiceAccept, nil
	case string(ChoiceReject), "retry":
		return ChoiceReject, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// Decision は介入に対する決定です。Reason は reject 時に次の試行の修正注記として使われます。
type Decision struct {
	Choice Choice `json:"choice"`
	Reason string `json:"reason,omitempty"`
}

// Intervention は人の判断を待っているパネルの情報です。
type Intervention struct {
	Panel     domain.PanelKey `json:"panel"`
	Character string          `json:"character"`
	Image     domain.Image    `json:"image"`
	Reference domain.Image    `json:"reference"`
	Reason    string          `json:"reason"`
	Attempt   int             `json:"attempt"`
}

// State はパイプラインの蓄積状態です。チェックポイントの単位でもあります。
// 順方向の実行中はフィールドが追加されるだけで、巻き戻るのは Reset と Load のときだけです。
type State struct {
	RunID      string
	Stage      Stage
	Status     string
	Progress   int
	Err        string
	SeedImage  domain.Image
	FromSample bool

	Profile   *domain.CharacterProfile
	Concepts  []domain.CharacterConcept
	Blueprint *domain.StoryDevelopmentPackage
	Outline   *domain.StoryOutline
	Roster    domain.Roster
	Scenes    domain.SceneRegistry
	Panels    []domain.GeneratedPanel

	Pending *Intervention
}

// NewState は初期状態を返します。
func NewState() State {
	return State{
		RunID:  uuid.NewString(),
		Stage:  StageIdle,
		Status: "画像のアップロードを待っています",
		Scenes: make(domain.SceneRegistry),
	}
}

// Complete は全パネルの生成が完了しているかを返します。
func (s State) Complete() bool {
	return s.Outline != nil && len(s.Outline.Panels) > 0 && len(s.Panels) >= len(s.Outline.Panels)
}

// HasPanel は指定キーのパネルが生成済みかを返します。
func (s State) HasPanel(key domain.PanelKey) bool {
	for _, p := range s.Panels {
		if p.Key() == key {
			return true
		}
	}
	return false
}

// FindPanel は生成済みパネルをキーで探します。
func (s State) FindPanel(key domain.PanelKey) (domain.GeneratedPanel, bool) {
	for _, p := range s.Panels {
		if p.Key() == key {
			return p, true
		}
	}
	return domain.GeneratedPanel{}, false
}

// Clone は読み手に渡すためのコピーを返します。
// 画像のバイト列は生成後に変更されないため共有します。
func (s State) Clone() State {
	c := s
	if s.Profile != nil {
		p := *s.Profile
		c.Profile = &p
	}
	if s.Blueprint != nil {
		b := *s.Blueprint
		c.Blueprint = &b
	}
	if s.Outline != nil {
		o := *s.Outline
		o.Panels = append([]domain.Panel(nil), s.Outline.Panels...)
		c.Outline = &o
	}
	c.Concepts = append([]domain.CharacterConcept(nil), s.Concepts...)
	c.Roster = make(domain.Roster, 0, len(s.Roster))
	for _, g := range s.Roster {
		images := make(map[domain.Shot]domain.Image, len(g.Images))
		for k, v := range g.Images {
			images[k] = v
		}
		g.Images = images
		c.Roster = append(c.Roster, g)
	}
	c.Scenes = make(domain.SceneRegistry, len(s.Scenes))
	for loc, set := range s.Scenes {
		copied := make(domain.ScenePerspectives, len(set))
		for p, img := range set {
			copied[p] = img
		}
		c.Scenes[loc] = copied
	}
	c.Panels = append([]domain.GeneratedPanel(nil), s.Panels...)
	if s.Pending != nil {
		iv := *s.Pending
		c.Pending = &iv
	}
	return c
}
