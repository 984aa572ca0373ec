package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"MetalPulse/internal/domain/models"
	drepo "MetalPulse/internal/domain/repository"
	domsvc "MetalPulse/internal/domain/service"
	"MetalPulse/internal/service/pricesource"
	"MetalPulse/internal/services/narrative"
	applogger "MetalPulse/pkg/logger"
)

// Analyzer runs the window analyses. Implementations must be pure and synchronous.
type Analyzer interface {
	Lookback() time.Duration
	Statistics(window []models.Observation) models.StatisticsSnapshot
	Trend(window []models.Observation) models.TrendSignal
	Anomalies(window []models.Observation) []models.AnomalyRecord
}

// Narrator always returns a usable summary; a non-nil error means it had to degrade.
type Narrator interface {
	Request(ctx context.Context, nc models.NarrativeContext) (models.NarrativeSummary, error)
}

type OrchestratorConfig struct {
	FetchTimeout time.Duration
	StoreTimeout time.Duration
	LockTimeout  time.Duration
	Bounds       pricesource.Bounds
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 10 * time.Second
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
}

type OrchestratorOption func(*Orchestrator)

// WithCycleLock guards cycles across replicas sharing one store.
func WithCycleLock(l drepo.CycleLock) OrchestratorOption {
	return func(o *Orchestrator) { o.lock = l }
}

func WithListeners(ls ...drepo.CycleListener) OrchestratorOption {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, ls...) }
}

func WithMetrics(m drepo.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs collect → analyze → summarize cycles. At most one cycle runs
// per process; concurrent triggers share the in-flight cycle's result.
type Orchestrator struct {
	source    domsvc.PriceSource
	store     drepo.Store
	analyzer  Analyzer
	narrator  Narrator
	lock      drepo.CycleLock
	listeners []drepo.CycleListener
	metrics   drepo.Metrics
	logger    *applogger.Logger
	cfg       OrchestratorConfig
	now       func() time.Time

	flight singleflight.Group

	mu      sync.RWMutex
	lastRun *models.PipelineRun
}

func NewOrchestrator(
	source domsvc.PriceSource,
	store drepo.Store,
	analyzer Analyzer,
	narrator Narrator,
	cfg OrchestratorConfig,
	logger *applogger.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		source:   source,
		store:    store,
		analyzer: analyzer,
		narrator: narrator,
		metrics:  drepo.NopMetrics{},
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Trigger runs one cycle and returns its result. If a cycle is already running
// in this process the call waits for it and returns that cycle's run. A run is
// returned even when collection failed; check run.Success. Errors are reserved
// for cycles that never started (ErrCycleBusy, lock failures) or a cancelled wait.
func (o *Orchestrator) Trigger(ctx context.Context, trigger string) (*models.PipelineRun, error) {
	// The cycle outlives any single caller; cancelling ctx only abandons the wait.
	cycleCtx := context.WithoutCancel(ctx)
	ch := o.flight.DoChan("cycle", func() (interface{}, error) {
		return o.execute(cycleCtx, trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			o.logger.Debug("trigger coalesced into in-flight cycle", applogger.String("trigger", trigger))
		}
		return res.Val.(*models.PipelineRun), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LastRun returns the most recently finished cycle.
func (o *Orchestrator) LastRun() (*models.PipelineRun, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastRun, o.lastRun != nil
}

func (o *Orchestrator) execute(ctx context.Context, trigger string) (*models.PipelineRun, error) {
	if o.lock != nil {
		lctx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
		ok, err := o.lock.TryAcquire(lctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("acquire cycle lock: %w", err)
		}
		if !ok {
			return nil, models.ErrCycleBusy
		}
		defer func() {
			rctx, cancel := context.WithTimeout(ctx, o.cfg.LockTimeout)
			defer cancel()
			if err := o.lock.Release(rctx); err != nil {
				o.logger.Warn("release cycle lock failed", applogger.Error(err))
			}
		}()
	}

	run := models.NewPipelineRun(trigger, o.now())
	log := o.logger.With(applogger.String("run_id", run.ID.String()), applogger.String("trigger", trigger))
	log.Info("cycle started")

	obs, ok := o.collect(ctx, run, log)
	if !ok {
		run.State = models.StateAborted
		return o.finish(ctx, run, log), nil
	}

	run.State = models.StateAnalyzing
	stats, trend := o.analyze(ctx, run, obs, log)

	run.State = models.StateSummarizing
	o.summarize(ctx, run, obs, stats, trend, log)

	run.State = models.StateDone
	run.Success = true
	return o.finish(ctx, run, log), nil
}

func (o *Orchestrator) collect(ctx context.Context, run *models.PipelineRun, log *applogger.Logger) (models.Observation, bool) {
	start := time.Now()
	obs, err := o.fetch(ctx)
	if err == nil {
		err = obs.CheckRequired()
	}
	if err == nil {
		for _, m := range o.cfg.Bounds.OutOfBounds(obs) {
			p, _ := obs.Price(m)
			log.Warn("price outside sanity band", applogger.String("metal", string(m)), applogger.Float("price", p))
		}
		sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
		err = o.store.SaveObservation(sctx, obs)
		cancel()
		if err != nil {
			err = fmt.Errorf("persist observation: %w", err)
		}
	}
	o.metrics.RecordStage(string(models.StageCollecting), time.Since(start), err)

	if err != nil {
		log.Error("collection failed, aborting cycle", applogger.Error(err))
		run.AddError(models.StageCollecting, err)
		return models.Observation{}, false
	}

	for _, m := range models.Metals {
		if p, ok := obs.Price(m); ok {
			o.metrics.RecordLastPrice(string(m), p)
		}
	}
	run.Observation = &obs
	run.MarkPresent(models.OutputObservation)
	return obs, true
}

func (o *Orchestrator) fetch(ctx context.Context) (obs models.Observation, err error) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("price source panic: %v", r)
		}
		o.metrics.RecordSourceFetch(o.source.Name(), err)
	}()
	return o.source.Fetch(fctx)
}

// analyze never fails the cycle. Whatever cannot be computed falls back to
// the zero snapshot and an insufficient_data trend.
func (o *Orchestrator) analyze(ctx context.Context, run *models.PipelineRun, obs models.Observation, log *applogger.Logger) (models.StatisticsSnapshot, models.TrendSignal) {
	start := time.Now()
	stats := models.StatisticsSnapshot{Timestamp: obs.Timestamp}
	trend := models.InsufficientTrend()
	var stageErr error

	fail := func(err error) {
		stageErr = err
		log.Error("analysis step failed", applogger.Error(err))
		run.AddError(models.StageAnalyzing, err)
	}
	defer func() { o.metrics.RecordStage(string(models.StageAnalyzing), time.Since(start), stageErr) }()

	end := o.now()
	if obs.Timestamp.After(end) {
		end = obs.Timestamp
	}
	qctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	window, err := o.store.QueryWindow(qctx, end.Add(-o.analyzer.Lookback()), end)
	cancel()
	if err != nil {
		fail(fmt.Errorf("query window: %w", err))
		return stats, trend
	}

	if s, err := guard("statistics", func() models.StatisticsSnapshot { return o.analyzer.Statistics(window) }); err != nil {
		fail(err)
	} else {
		// An empty window carries no timestamp; keep the cycle's observation time.
		if s.Timestamp.IsZero() {
			s.Timestamp = obs.Timestamp
		}
		stats = s
		run.Statistics = &stats
		run.MarkPresent(models.OutputStatistics)

		sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
		if err := o.store.SaveSnapshot(sctx, stats); err != nil {
			fail(fmt.Errorf("persist snapshot: %w", err))
		}
		cancel()
	}

	if t, err := guard("trend", func() models.TrendSignal { return o.analyzer.Trend(window) }); err != nil {
		fail(err)
	} else {
		trend = t
		run.Trend = &trend
		run.MarkPresent(models.OutputTrend)
	}

	if a, err := guard("anomalies", func() []models.AnomalyRecord { return o.analyzer.Anomalies(window) }); err != nil {
		fail(err)
	} else {
		run.Anomalies = a
		run.MarkPresent(models.OutputAnomalies)
		for _, rec := range a {
			o.metrics.RecordAnomaly(string(rec.Metal))
			log.Info("price anomaly",
				applogger.String("metal", string(rec.Metal)),
				applogger.Time("at", rec.Timestamp),
				applogger.Float("price", rec.Price),
				applogger.Float("deviation_std", rec.DeviationInStdUnits),
			)
		}
	}

	log.Debug("analysis done", applogger.Int("window", len(window)), applogger.Duration("duration_ms", time.Since(start)))
	return stats, trend
}

func (o *Orchestrator) summarize(ctx context.Context, run *models.PipelineRun, obs models.Observation, stats models.StatisticsSnapshot, trend models.TrendSignal, log *applogger.Logger) {
	start := time.Now()
	nc := narrative.BuildContext(obs, stats, trend)

	summary, err := o.request(ctx, nc)
	if err != nil {
		log.Warn("narrative degraded to template", applogger.Error(err))
		run.AddError(models.StageSummarizing, err)
	}
	if summary.Timestamp.IsZero() {
		summary.Timestamp = o.now()
	}

	producer := "model"
	if summary.Fallback {
		producer = "template"
	}
	o.metrics.RecordSummary(producer)

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	serr := o.store.SaveNarrative(sctx, summary)
	cancel()
	if serr != nil {
		serr = fmt.Errorf("persist narrative: %w", serr)
		log.Error("narrative not persisted", applogger.Error(serr))
		run.AddError(models.StageSummarizing, serr)
	}

	run.Narrative = &summary
	run.MarkPresent(models.OutputNarrative)
	if err == nil {
		err = serr
	}
	o.metrics.RecordStage(string(models.StageSummarizing), time.Since(start), err)
}

// request shields the cycle from a misbehaving narrator.
func (o *Orchestrator) request(ctx context.Context, nc models.NarrativeContext) (s models.NarrativeSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("narrator panic: %v", r)
			s = narrative.FallbackSummary(nc)
		}
	}()
	return o.narrator.Request(ctx, nc)
}

func (o *Orchestrator) finish(ctx context.Context, run *models.PipelineRun, log *applogger.Logger) *models.PipelineRun {
	run.FinishedAt = o.now()
	o.metrics.RecordCycle(run.Success, run.Duration())

	o.mu.Lock()
	o.lastRun = run
	o.mu.Unlock()

	log.Info("cycle finished",
		applogger.String("state", string(run.State)),
		applogger.Bool("success", run.Success),
		applogger.Int("stage_errors", len(run.StageErrors)),
		applogger.Strings("outputs", run.StageOutputsPresent),
		applogger.Duration("duration_ms", run.Duration()),
	)

	for _, l := range o.listeners {
		l.OnCycle(ctx, run)
	}
	return run
}

// guard converts a panic inside a pure analysis step into an error.
func guard[T any](name string, f func() T) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: unexpected failure: %v", name, r)
		}
	}()
	return f(), nil
}
