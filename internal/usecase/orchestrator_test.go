package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/repository"
	"MetalPulse/internal/service/pricesource"
	"MetalPulse/internal/services/analytics"
	"MetalPulse/internal/services/narrative"
	"MetalPulse/pkg/config"
	applogger "MetalPulse/pkg/logger"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	obs     models.Observation
	err     error
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) (models.Observation, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	return f.obs, f.err
}

type panicAnalyzer struct {
	*analytics.Engine
	trendPanic string
}

func (p panicAnalyzer) Trend(window []models.Observation) models.TrendSignal {
	if p.trendPanic != "" {
		panic(p.trendPanic)
	}
	return p.Engine.Trend(window)
}

type failingSummarizer struct{}

func (failingSummarizer) Name() string { return "broken-model" }

func (failingSummarizer) Summarize(context.Context, models.NarrativeContext) (string, error) {
	return "", errors.New("deadline exceeded")
}

type runRecorder struct {
	mu   sync.Mutex
	runs []*models.PipelineRun
}

func (r *runRecorder) OnCycle(_ context.Context, run *models.PipelineRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
}

func (r *runRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

type fixture struct {
	store    *repository.MemoryStore
	source   *fakeSource
	listener *runRecorder
	orch     *Orchestrator
}

func newFixture(t *testing.T, analyzer Analyzer, narrator Narrator, opts ...OrchestratorOption) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()
	for i, gold := range []float64{9500, 9500, 9700} {
		require.NoError(t, store.SaveObservation(ctx, models.Observation{
			Timestamp: t0.Add(time.Duration(i-3) * time.Hour), GoldPrice: gold, SilverPrice: 115, Source: "seed",
		}))
	}

	src := &fakeSource{obs: models.Observation{Timestamp: t0, GoldPrice: 9900, SilverPrice: 115, Source: "fake"}}
	if analyzer == nil {
		analyzer = analytics.NewEngine(analytics.DefaultConfig())
	}
	if narrator == nil {
		narrator = narrative.NewRequester(applogger.NewNop())
	}
	rec := &runRecorder{}
	cfg := OrchestratorConfig{Bounds: pricesource.Bounds{
		Gold:   config.Range{Min: 5000, Max: 15000},
		Silver: config.Range{Min: 50, Max: 300},
	}}
	opts = append([]OrchestratorOption{
		WithListeners(rec),
		WithClock(func() time.Time { return t0.Add(time.Minute) }),
	}, opts...)

	return &fixture{
		store:    store,
		source:   src,
		listener: rec,
		orch:     NewOrchestrator(src, store, analyzer, narrator, cfg, applogger.NewNop(), opts...),
	}
}

func TestCycleEndToEnd(t *testing.T) {
	f := newFixture(t, nil, nil)

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)

	assert.True(t, run.Success)
	assert.Equal(t, models.StateDone, run.State)
	assert.Empty(t, run.StageErrors)
	assert.Equal(t, []string{
		models.OutputObservation, models.OutputStatistics, models.OutputTrend, models.OutputAnomalies, models.OutputNarrative,
	}, run.StageOutputsPresent)

	require.NotNil(t, run.Statistics)
	assert.Equal(t, 9650.0, run.Statistics.PerMetal.Gold.Avg)
	assert.Equal(t, 9900.0, run.Statistics.PerMetal.Gold.Max)
	assert.Equal(t, 9500.0, run.Statistics.PerMetal.Gold.Min)
	assert.Equal(t, 4, run.Statistics.DataPoints)
	require.NotNil(t, run.Trend)
	assert.Equal(t, models.TrendRising, run.Trend.PerMetal.Gold.Direction)
	assert.Equal(t, 3.16, run.Trend.PerMetal.Gold.ChangePercent)

	require.NotNil(t, run.Narrative)
	assert.True(t, run.Narrative.Fallback)

	ctx := context.Background()
	snap, err := f.store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9650.0, snap.PerMetal.Gold.Avg)
	_, err = f.store.LatestNarrative(ctx)
	require.NoError(t, err)

	last, ok := f.orch.LastRun()
	require.True(t, ok)
	assert.Same(t, run, last)
	assert.Equal(t, 1, f.listener.count())
	assert.Equal(t, time.Minute, run.FinishedAt.Sub(t0))
}

func TestCycleAbortsOnCollectionFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.err = errors.New("upstream timeout")

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)

	assert.False(t, run.Success)
	assert.Equal(t, models.StateAborted, run.State)
	require.Len(t, run.StageErrors, 1)
	assert.Equal(t, models.StageCollecting, run.StageErrors[0].Stage)
	assert.Contains(t, run.StageErrors[0].Message, "upstream timeout")
	assert.Empty(t, run.StageOutputsPresent)
	assert.Nil(t, run.Narrative)

	_, err = f.store.LatestSnapshot(context.Background())
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, f.listener.count())
}

func TestCycleAbortsOnMissingRequiredField(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.obs.SilverPrice = 0

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)
	assert.False(t, run.Success)
	require.Len(t, run.StageErrors, 1)
	assert.ErrorIs(t, run.StageErrors[0], models.ErrNonPositivePrice)
}

func TestEmptyWindowSnapshotKeepsObservationTime(t *testing.T) {
	store := repository.NewMemoryStore()
	stale := t0.Add(-40 * 24 * time.Hour)
	src := &fakeSource{obs: models.Observation{Timestamp: stale, GoldPrice: 9900, SilverPrice: 115, Source: "fake"}}
	orch := NewOrchestrator(src, store, analytics.NewEngine(analytics.DefaultConfig()), narrative.NewRequester(applogger.NewNop()),
		OrchestratorConfig{}, applogger.NewNop(), WithClock(func() time.Time { return t0 }))

	run, err := orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)
	require.True(t, run.Success)
	require.NotNil(t, run.Statistics)
	assert.Equal(t, 0, run.Statistics.DataPoints)
	assert.Equal(t, stale, run.Statistics.Timestamp)

	snap, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stale, snap.Timestamp)
}

func TestOutOfBoundsPriceIsStillPersisted(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.obs.GoldPrice = 20000

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, run.Success)

	latest, err := f.store.LatestObservation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20000.0, latest.GoldPrice)
}

func TestAnalysisFaultIsIsolated(t *testing.T) {
	analyzer := panicAnalyzer{Engine: analytics.NewEngine(analytics.DefaultConfig()), trendPanic: "injected trend fault"}
	f := newFixture(t, analyzer, nil)

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)

	assert.True(t, run.Success)
	assert.Equal(t, models.StateDone, run.State)
	require.Len(t, run.StageErrors, 1)
	assert.Equal(t, models.StageAnalyzing, run.StageErrors[0].Stage)
	assert.Contains(t, run.StageErrors[0].Message, "injected trend fault")

	assert.True(t, run.HasOutput(models.OutputStatistics))
	assert.False(t, run.HasOutput(models.OutputTrend))
	assert.True(t, run.HasOutput(models.OutputNarrative))
	require.NotNil(t, run.Narrative)
	assert.Contains(t, run.Narrative.MarketAnalysis, "震盪")
}

func TestSummarizerFailureFallsBack(t *testing.T) {
	narrator := narrative.NewRequester(applogger.NewNop(), narrative.WithSummarizer(failingSummarizer{}))
	f := newFixture(t, nil, narrator)

	run, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)

	assert.True(t, run.Success)
	require.Len(t, run.StageErrors, 1)
	assert.Equal(t, models.StageSummarizing, run.StageErrors[0].Stage)
	require.NotNil(t, run.Narrative)
	assert.True(t, run.Narrative.Fallback)
	assert.Equal(t, narrative.FallbackModel, run.Narrative.SourceModel)
}

func TestConcurrentTriggersNeverOverlap(t *testing.T) {
	f := newFixture(t, nil, nil)

	var wg sync.WaitGroup
	runs := make([]*models.PipelineRun, 8)
	for i := range runs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run, err := f.orch.Trigger(context.Background(), "manual")
			assert.NoError(t, err)
			runs[i] = run
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.source.maxSeen.Load())
	for _, r := range runs {
		require.NotNil(t, r)
		assert.True(t, r.Success)
	}
}

func TestTriggerJoinsInFlightCycle(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.block = make(chan struct{})
	f.source.entered = make(chan struct{}, 1)

	first := make(chan *models.PipelineRun)
	go func() {
		run, _ := f.orch.Trigger(context.Background(), "schedule")
		first <- run
	}()
	<-f.source.entered

	second := make(chan *models.PipelineRun)
	go func() {
		run, _ := f.orch.Trigger(context.Background(), "manual")
		second <- run
	}()
	time.Sleep(50 * time.Millisecond)
	close(f.source.block)

	a, b := <-first, <-second
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), f.source.calls.Load())
}

func TestTriggerCancelledWaitLeavesCycleRunning(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.source.block = make(chan struct{})
	f.source.entered = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := f.orch.Trigger(ctx, "manual")
		errc <- err
	}()
	<-f.source.entered
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(f.source.block)
	require.Eventually(t, func() bool { return f.listener.count() == 1 }, time.Second, 10*time.Millisecond)
	last, ok := f.orch.LastRun()
	require.True(t, ok)
	assert.True(t, last.Success)
}

type fixedLock struct {
	ok       bool
	released atomic.Bool
}

func (l *fixedLock) TryAcquire(context.Context) (bool, error) { return l.ok, nil }

func (l *fixedLock) Release(context.Context) error {
	l.released.Store(true)
	return nil
}

func TestCycleLockBusy(t *testing.T) {
	lock := &fixedLock{ok: false}
	f := newFixture(t, nil, nil, WithCycleLock(lock))

	run, err := f.orch.Trigger(context.Background(), "manual")
	assert.ErrorIs(t, err, models.ErrCycleBusy)
	assert.Nil(t, run)
	assert.Equal(t, int32(0), f.source.calls.Load())
	assert.False(t, lock.released.Load())
}

func TestCycleLockReleased(t *testing.T) {
	lock := &fixedLock{ok: true}
	f := newFixture(t, nil, nil, WithCycleLock(lock))

	_, err := f.orch.Trigger(context.Background(), "manual")
	require.NoError(t, err)
	assert.True(t, lock.released.Load())
}
