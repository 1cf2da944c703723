package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/stretchr/testify/require"
)

// --- Mocks ---

// fakeService は呼び出しを記録するテスト用の Service 実装なのだ。
type fakeService struct {
	mu sync.Mutex

	profile   *domain.CharacterProfile
	concepts  []domain.CharacterConcept
	blueprint *domain.StoryDevelopmentPackage
	outline   *domain.StoryOutline

	narrative  string
	narrateErr error
	scriptErr  error

	polishFn func(p domain.Panel) domain.Panel
	imageFn  func(req domain.ImageRequest, n int) (domain.Image, error)
	verifyFn func(img domain.Image, c domain.GeneratedCharacter) (domain.Verification, error)

	calls         map[string]int
	imageRequests []domain.ImageRequest
	verified      []string
}

func newFakeService() *fakeService {
	return &fakeService{
		profile:   &domain.CharacterProfile{ArtStyle: "noir ink", ConsistencyTags: "trench coat, left arm brace"},
		concepts:  testConcepts(),
		blueprint: testBlueprint(),
		outline:   testOutline(),
		narrative: "The rain never stopped in the harbor.",
		calls:     make(map[string]int),
	}
}

func (f *fakeService) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeService) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeService) textCalls() int {
	return f.count("analyze") + f.count("cast") + f.count("blueprint") + f.count("script") + f.count("polish") + f.count("narrate")
}

func (f *fakeService) AnalyzeImage(ctx context.Context, img domain.Image) (*domain.CharacterProfile, error) {
	f.record("analyze")
	p := *f.profile
	return &p, nil
}

func (f *fakeService) GenerateCastConcepts(ctx context.Context, profile *domain.CharacterProfile) ([]domain.CharacterConcept, error) {
	f.record("cast")
	return append([]domain.CharacterConcept(nil), f.concepts...), nil
}

func (f *fakeService) DevelopBlueprint(ctx context.Context, concepts []domain.CharacterConcept) (*domain.StoryDevelopmentPackage, error) {
	f.record("blueprint")
	b := *f.blueprint
	return &b, nil
}

func (f *fakeService) GenerateScript(ctx context.Context, blueprint *domain.StoryDevelopmentPackage, castDescription string) (*domain.StoryOutline, error) {
	f.record("script")
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	o := *f.outline
	o.Panels = append([]domain.Panel(nil), f.outline.Panels...)
	return &o, nil
}

func (f *fakeService) PolishDialogue(ctx context.Context, panel domain.Panel, blueprint *domain.StoryDevelopmentPackage) domain.Panel {
	f.record("polish")
	if f.polishFn != nil {
		return f.polishFn(panel)
	}
	return panel
}

func (f *fakeService) Narrate(ctx context.Context, outline *domain.StoryOutline) (string, error) {
	f.record("narrate")
	if f.narrateErr != nil {
		return "", f.narrateErr
	}
	return f.narrative, nil
}

func (f *fakeService) GenerateImage(ctx context.Context, req domain.ImageRequest) (domain.Image, error) {
	f.mu.Lock()
	f.calls["image"]++
	n := f.calls["image"]
	f.imageRequests = append(f.imageRequests, req)
	fn := f.imageFn
	f.mu.Unlock()

	if fn != nil {
		return fn(req, n)
	}
	return domain.Image{Data: []byte(fmt.Sprintf("img-%d", n)), MIMEType: "image/png"}, nil
}

func (f *fakeService) VerifyConsistency(ctx context.Context, img domain.Image, c domain.GeneratedCharacter) (domain.Verification, error) {
	f.mu.Lock()
	f.calls["verify"]++
	f.verified = append(f.verified, c.Name)
	fn := f.verifyFn
	f.mu.Unlock()

	if fn != nil {
		return fn(img, c)
	}
	return domain.Verification{Match: true}, nil
}

// requests は条件に合う画像生成リクエストを返します。
func (f *fakeService) requests(match func(req domain.ImageRequest) bool) []domain.ImageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ImageRequest
	for _, r := range f.imageRequests {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

// --- Fixtures ---

const panelPromptPrefix = "Generate the artwork for a single comic book panel"

func isPanelRequest(req domain.ImageRequest) bool {
	return strings.HasPrefix(req.Prompt, panelPromptPrefix)
}

func isPanelAt(location string) func(req domain.ImageRequest) bool {
	return func(req domain.ImageRequest) bool {
		return isPanelRequest(req) && strings.Contains(req.Prompt, fmt.Sprintf("%q: %q", "location", location))
	}
}

func testConcepts() []domain.CharacterConcept {
	return []domain.CharacterConcept{
		{Role: "Protagonist", Name: "Rook", Description: "ex-boxer turned detective", ConsistencyTags: "trench coat, left arm brace"},
		{Role: "Mentor", Name: "Mother Ada", Description: "retired fixer"},
		{Role: "Ally", Name: "Pike", Description: "dock worker"},
		{Role: "Antagonist", Name: "Vesper Crane", Description: "shipping magnate"},
		{Role: "Henchman", Name: "Latch", Description: "locksmith enforcer"},
	}
}

func testBlueprint() *domain.StoryDevelopmentPackage {
	return &domain.StoryDevelopmentPackage{
		Title:   "Last Bell",
		Logline: "A broken boxer hunts the man who fixed his final fight.",
		Themes:  []string{"redemption"},
		ThreeActOutline: []domain.Act{
			{ActNumber: 1, ActTitle: "The Fix"},
			{ActNumber: 2, ActTitle: "The Docks"},
			{ActNumber: 3, ActTitle: "The Bell"},
		},
	}
}

func panelAt(page domain.PageNumber, n int, location string, names ...string) domain.Panel {
	p := domain.Panel{PageNumber: page, PanelNumber: n}
	p.Visuals.Setting.Location = location
	for _, name := range names {
		p.Visuals.Characters = append(p.Visuals.Characters, domain.PanelCharacter{Name: name})
		p.Textual.Dialogue = append(p.Textual.Dialogue, domain.DialogueLine{Character: name, Content: "..."})
	}
	return p
}

// testOutline は表紙 + 3パネルの台本です。(1,1) と (1,2) は表記揺れのある同じロケーションです。
func testOutline() *domain.StoryOutline {
	return &domain.StoryOutline{
		Title:    "Last Bell",
		Prologue: "The city sleeps.",
		Panels: []domain.Panel{
			panelAt(domain.CoverPage, 1, ""),
			panelAt(1, 1, "Harbor Docks", "Rook", "Pike"),
			panelAt(1, 2, "  harbor   docks ", "Rook"),
			panelAt(2, 1, "Clock Tower", "Rook"),
		},
	}
}

func newTestOrchestrator(t *testing.T, svc Service, cfg Config) *Orchestrator {
	t.Helper()
	images := prompts.NewImagePromptBuilder(prompts.MustNewTextPromptBuilder(), "")
	o, err := New(svc, images, cfg)
	require.NoError(t, err)
	return o
}

func keysOf(panels []domain.GeneratedPanel) []domain.PanelKey {
	keys := make([]domain.PanelKey, 0, len(panels))
	for _, p := range panels {
		keys = append(keys, p.Key())
	}
	return keys
}
