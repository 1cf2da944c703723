package server

import (
	"context"
	"sync"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
)

// --- Mocks ---

type fakePipeline struct {
	mu       sync.Mutex
	state    pipeline.State
	running  bool
	calls    map[string]int
	seed     domain.Image
	decision *pipeline.Decision
	loaded   *pipeline.State

	resetErr   error
	resolveErr error
	updates    chan pipeline.State
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		state:   pipeline.NewState(),
		calls:   map[string]int{},
		updates: make(chan pipeline.State, 1),
	}
}

func (f *fakePipeline) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakePipeline) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakePipeline) Snapshot() pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakePipeline) Subscribe() (<-chan pipeline.State, func()) {
	f.record("subscribe")
	return f.updates, func() {}
}

func (f *fakePipeline) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakePipeline) StartFromImage(ctx context.Context, img domain.Image) error {
	f.mu.Lock()
	f.seed = img
	f.mu.Unlock()
	f.record("image")
	return nil
}

func (f *fakePipeline) StartFromSample(ctx context.Context) error {
	f.record("sample")
	return nil
}

func (f *fakePipeline) Retry(ctx context.Context) error {
	f.record("retry")
	return nil
}

func (f *fakePipeline) ResolveIntervention(d pipeline.Decision) error {
	f.record("resolve")
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decision = &d
	return nil
}

func (f *fakePipeline) Reset() error {
	f.record("reset")
	return f.resetErr
}

func (f *fakePipeline) Load(s pipeline.State) error {
	f.record("load")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = &s
	f.state = s
	return nil
}

type fakeFetcher struct {
	img domain.Image
	err error
	url string
}

func (f *fakeFetcher) FetchURL(ctx context.Context, rawURL string) (domain.Image, error) {
	f.url = rawURL
	return f.img, f.err
}

type memStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (m *memStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[key] = data
	return nil
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[key], nil
}
