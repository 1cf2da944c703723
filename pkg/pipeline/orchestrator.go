package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-comic-kit/examples"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/metrics"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/shouni/go-comic-kit/pkg/pipeline")

// Orchestrator はコミック生成の全工程を駆動する再開可能なステートマシンなのだ。
// 状態を書き換えるのは実行中のパイプライン自身だけで、読み手にはスナップショットを渡します。
type Orchestrator struct {
	svc    Service
	images *prompts.ImagePromptBuilder
	cfg    Config

	mu        sync.RWMutex
	state     State
	running   bool
	decisions chan Decision

	subMu       sync.Mutex
	subscribers map[int]chan State
	nextSubID   int
}

// New は依存関係を検証して Orchestrator を初期化します。
func New(svc Service, images *prompts.ImagePromptBuilder, cfg Config) (*Orchestrator, error) {
	if svc == nil {
		return nil, fmt.Errorf("service は必須です")
	}
	if images == nil {
		return nil, fmt.Errorf("imagePromptBuilder は必須です")
	}
	return &Orchestrator{
		svc:         svc,
		images:      images,
		cfg:         cfg.normalized(),
		state:       NewState(),
		decisions:   make(chan Decision, 1),
		subscribers: make(map[int]chan State),
	}, nil
}

// Snapshot は現在の状態のコピーを返します。介入待ちの間も自由に呼び出せます。
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// Running はパイプラインが実行中かどうかを返します。
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Subscribe は状態が更新されるたびにスナップショットを受け取るチャネルを返します。
// 受信が追いつかない場合は古いスナップショットを捨てて最新のものを残します。
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	ch := make(chan State, 1)
	o.subscribers[id] = ch

	cancel := func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if c, ok := o.subscribers[id]; ok {
			delete(o.subscribers, id)
			close(c)
		}
	}
	return ch, cancel
}

func (o *Orchestrator) publish(snap State) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (o *Orchestrator) hasSubscribers() bool {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	return len(o.subscribers) > 0
}

// update は状態を書き換え、購読者にスナップショットを配信します。
func (o *Orchestrator) update(fn func(s *State)) {
	notify := o.hasSubscribers()

	o.mu.Lock()
	fn(&o.state)
	var snap State
	if notify {
		snap = o.state.Clone()
	}
	o.mu.Unlock()

	if notify {
		o.publish(snap)
	}
}

// view は読み取りロックの下で状態を参照します。
func (o *Orchestrator) view(fn func(s *State)) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fn(&o.state)
}

func (o *Orchestrator) setStatus(status string) {
	o.update(func(s *State) { s.Status = status })
}

// Reset はすべてのフィールドを初期値に戻します。
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrBusy
	}
	o.state = NewState()
	o.mu.Unlock()

	o.drainDecisions()
	o.publish(o.Snapshot())
	slog.Info("パイプラインの状態をリセットしました")
	return nil
}

// Load はリストアしたチェックポイントで状態を置き換えます。
// 保留中の介入は復元せず、介入待ちの状態はパネル生成から再開させます。
func (o *Orchestrator) Load(s State) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrBusy
	}
	s = s.Clone()
	s.Pending = nil
	if s.Stage == StageAwaitingIntervention {
		s.Stage = StagePanels
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	if s.Scenes == nil {
		s.Scenes = make(domain.SceneRegistry)
	}
	o.state = s
	o.mu.Unlock()

	o.drainDecisions()
	o.publish(o.Snapshot())
	return nil
}

// StartFromImage は状態をリセットし、アップロードされた画像からパイプラインを実行します。
func (o *Orchestrator) StartFromImage(ctx context.Context, img domain.Image) error {
	if img.IsEmpty() {
		return ErrNoSeedImage
	}
	return o.start(ctx, func(s *State) error {
		*s = NewState()
		s.SeedImage = img
		s.Status = "画像を受け付けました"
		return nil
	})
}

// StartFromSample は同梱のサンプルデータで初期工程を置き換えてパイプラインを実行します。
func (o *Orchestrator) StartFromSample(ctx context.Context) error {
	return o.start(ctx, func(s *State) error {
		sample, err := examples.LoadSample()
		if err != nil {
			return err
		}
		outline := sample.Story.FilterPages(o.cfg.SamplePageLimit)

		*s = NewState()
		s.FromSample = true
		s.Profile = &sample.Profile
		s.Concepts = sample.Concepts
		s.Blueprint = &sample.Blueprint
		s.Outline = &outline
		s.Status = "サンプルデータを読み込みました"
		return nil
	})
}

// Retry は現在の状態からパイプラインを再開します。完了済みの工程はスキップされます。
func (o *Orchestrator) Retry(ctx context.Context) error {
	return o.start(ctx, nil)
}

// ResolveIntervention は介入待ちのパイプラインに人の判断を届けます。
func (o *Orchestrator) ResolveIntervention(d Decision) error {
	if d.Choice != ChoiceAccept && d.Choice != ChoiceReject {
		return fmt.Errorf("%w: %q", ErrInvalidChoice, d.Choice)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Pending == nil {
		return ErrNoPendingIntervention
	}
	select {
	case o.decisions <- d:
		return nil
	default:
		return fmt.Errorf("%w (既に判断が送信されています)", ErrNoPendingIntervention)
	}
}

func (o *Orchestrator) drainDecisions() {
	for {
		select {
		case <-o.decisions:
		default:
			return
		}
	}
}

// start は実行権を取得し、必要なら状態を準備してからパイプラインを実行します。
func (o *Orchestrator) start(ctx context.Context, prepare func(s *State) error) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrBusy
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if prepare != nil {
		var prepErr error
		o.update(func(s *State) { prepErr = prepare(s) })
		if prepErr != nil {
			return prepErr
		}
	}
	o.update(func(s *State) { s.Err = "" })

	err := o.run(ctx)
	if err != nil {
		o.update(func(s *State) {
			s.Err = err.Error()
			s.Status = "エラーが発生しました。再試行するか進捗をエクスポートしてください"
			s.Pending = nil
			if s.Stage == StageAwaitingIntervention {
				s.Stage = StagePanels
			}
		})
		slog.ErrorContext(ctx, "パイプラインが停止しました", "error", err)
		return err
	}
	return nil
}

type stageStep struct {
	stage  Stage
	status string
	done   func(s *State) bool
	run    func(ctx context.Context) error
}

// run は各工程を順番に実行します。出力が既にある工程はスキップされます。
func (o *Orchestrator) run(ctx context.Context) error {
	steps := []stageStep{
		{StageAnalyze, "キャラクターを解析しています", func(s *State) bool { return s.Profile != nil }, o.analyze},
		{StageCastConcepts, "キャストを考えています", func(s *State) bool { return len(s.Concepts) > 0 }, o.castConcepts},
		{StageBlueprint, "物語を設計しています", func(s *State) bool { return s.Blueprint != nil }, o.blueprint},
		{StageScript, "台本を書いています", func(s *State) bool { return s.Outline != nil }, o.script},
		{StagePortraits, "キャラクターを描いています", o.portraitsDone, o.portraits},
		{StageScenes, "背景を描いています", o.scenesDone, o.scenes},
		{StagePanels, "パネルを描いています", func(s *State) bool { return s.Complete() }, o.panels},
	}

	for _, step := range steps {
		var done bool
		o.view(func(s *State) { done = step.done(s) })
		if done {
			slog.DebugContext(ctx, "出力が既にあるため工程をスキップします", "stage", step.stage)
			continue
		}
		if err := o.runStage(ctx, step); err != nil {
			return err
		}
	}

	o.update(func(s *State) {
		s.Stage = StageFinalize
		s.Status = "コミックが完成しました"
		s.Progress = 100
	})
	metrics.PipelineProgress.Set(100)
	slog.InfoContext(ctx, "すべての生成工程が完了したのだ！")
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, step stageStep) error {
	var runID string
	o.update(func(s *State) {
		s.Stage = step.stage
		s.Status = step.status
		runID = s.RunID
	})

	ctx, span := tracer.Start(ctx, "pipeline."+string(step.stage),
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	startTime := time.Now()
	slog.InfoContext(ctx, "工程を開始します", "stage", step.stage, "run_id", runID)

	err := step.run(ctx)
	duration := time.Since(startTime)
	metrics.RecordStage(string(step.stage), duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "工程に失敗しました", "stage", step.stage, "duration", duration.Round(time.Millisecond), "error", err)
		return fmt.Errorf("%s 工程に失敗しました: %w", step.stage, err)
	}

	slog.InfoContext(ctx, "工程が完了しました", "stage", step.stage, "duration", duration.Round(time.Millisecond))
	return nil
}
