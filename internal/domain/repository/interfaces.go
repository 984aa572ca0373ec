package repository

import (
	"context"
	"time"

	"MetalPulse/internal/domain/models"
)

// Store is the append-only persistence contract of the pipeline.
// Latest* return models.ErrNotFound when nothing of that kind exists yet.
type Store interface {
	SaveObservation(ctx context.Context, o models.Observation) error
	SaveSnapshot(ctx context.Context, s models.StatisticsSnapshot) error
	SaveNarrative(ctx context.Context, n models.NarrativeSummary) error

	// QueryWindow returns observations with start <= timestamp <= end, ascending by timestamp.
	QueryWindow(ctx context.Context, start, end time.Time) ([]models.Observation, error)

	LatestObservation(ctx context.Context) (models.Observation, error)
	LatestSnapshot(ctx context.Context) (models.StatisticsSnapshot, error)
	LatestNarrative(ctx context.Context) (models.NarrativeSummary, error)

	Name() string
	Health(ctx context.Context) error
	Close() error
}

// CycleListener is notified after every finished cycle, successful or not.
type CycleListener interface {
	OnCycle(ctx context.Context, run *models.PipelineRun)
}

// CycleLock guards a cycle across replicas that share one store.
// TryAcquire returns false without error when another holder owns the lock.
type CycleLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Metrics interface {
	RecordCycle(success bool, d time.Duration)
	RecordStage(stage string, d time.Duration, err error)
	RecordSourceFetch(source string, err error)
	RecordSummary(producer string)
	RecordAnomaly(metal string)
	RecordLastPrice(metal string, price float64)
}

// NopMetrics discards everything; used when metrics are disabled and in tests.
type NopMetrics struct{}

func (NopMetrics) RecordCycle(bool, time.Duration) {}
func (NopMetrics) RecordStage(string, time.Duration, error) {}
func (NopMetrics) RecordSourceFetch(string, error) {}
func (NopMetrics) RecordSummary(string) {}
func (NopMetrics) RecordAnomaly(string) {}
func (NopMetrics) RecordLastPrice(string, float64) {}
