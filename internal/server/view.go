package server

import (
	"fmt"

	"github.com/shouni/go-comic-kit/pkg/checkpoint"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

// snapshotView はクライアントに返す状態の JSON 表現です。
// 画像のバイト列は含めず、取得用の URL だけを返します。
type snapshotView struct {
	RunID        string                          `json:"runId"`
	Stage        pipeline.Stage                  `json:"stage"`
	Status       string                          `json:"status"`
	Progress     int                             `json:"progress"`
	Error        string                          `json:"error,omitempty"`
	FromSample   bool                            `json:"fromSample"`
	HasSeedImage bool                            `json:"hasSeedImage"`
	Hint         checkpoint.ResumeHint           `json:"hint"`
	Profile      *domain.CharacterProfile        `json:"characterProfile,omitempty"`
	Concepts     []domain.CharacterConcept       `json:"characterConcepts,omitempty"`
	Blueprint    *domain.StoryDevelopmentPackage `json:"storyDevelopmentPackage,omitempty"`
	Outline      *domain.StoryOutline            `json:"story,omitempty"`
	Roster       []characterView                 `json:"characterRoster"`
	Scenes       map[string][]domain.Perspective `json:"sceneImages"`
	Panels       []panelView                     `json:"generatedPanels"`
	Pending      *interventionView               `json:"pendingIntervention,omitempty"`
}

type characterView struct {
	Name  string        `json:"name"`
	Role  string        `json:"role"`
	Shots []domain.Shot `json:"shots"`
}

type panelView struct {
	Page     domain.PageNumber `json:"page_number"`
	Panel    int               `json:"panel_number"`
	ImageURL string            `json:"imageUrl"`
}

type interventionView struct {
	Panel        domain.PanelKey `json:"panel"`
	Character    string          `json:"character"`
	Reason       string          `json:"reason"`
	Attempt      int             `json:"attempt"`
	ImageURL     string          `json:"imageUrl"`
	ReferenceURL string          `json:"referenceUrl"`
}

func panelImageURL(key domain.PanelKey) string {
	return fmt.Sprintf("/api/run/panels/%s/%d/image", key.Page, key.Panel)
}

func newSnapshotView(s pipeline.State) snapshotView {
	v := snapshotView{
		RunID:        s.RunID,
		Stage:        s.Stage,
		Status:       s.Status,
		Progress:     s.Progress,
		Error:        s.Err,
		FromSample:   s.FromSample,
		HasSeedImage: !s.SeedImage.IsEmpty(),
		Hint:         checkpoint.HintFor(s),
		Profile:      s.Profile,
		Concepts:     s.Concepts,
		Blueprint:    s.Blueprint,
		Outline:      s.Outline,
		Roster:       make([]characterView, 0, len(s.Roster)),
		Scenes:       make(map[string][]domain.Perspective, len(s.Scenes)),
		Panels:       make([]panelView, 0, len(s.Panels)),
	}
	for _, c := range s.Roster {
		cv := characterView{Name: c.Name, Role: c.Role}
		for _, shot := range domain.ShotKeys {
			if img, ok := c.Images[shot]; ok && !img.IsEmpty() {
				cv.Shots = append(cv.Shots, shot)
			}
		}
		v.Roster = append(v.Roster, cv)
	}
	for loc, set := range s.Scenes {
		v.Scenes[loc] = set.Available()
	}
	for _, gp := range s.Panels {
		key := gp.Key()
		v.Panels = append(v.Panels, panelView{Page: key.Page, Panel: key.Panel, ImageURL: panelImageURL(key)})
	}
	if s.Pending != nil {
		v.Pending = &interventionView{
			Panel:        s.Pending.Panel,
			Character:    s.Pending.Character,
			Reason:       s.Pending.Reason,
			Attempt:      s.Pending.Attempt,
			ImageURL:     "/api/run/intervention/image?kind=generated",
			ReferenceURL: "/api/run/intervention/image?kind=reference",
		}
	}
	return v
}
