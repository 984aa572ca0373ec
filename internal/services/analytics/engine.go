package analytics

import (
	"time"

	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/util"
)

type Config struct {
	TrendThreshold    float64 // percent
	AnomalyMultiplier float64 // standard deviations
	AnomalyMinPoints  int
	Lookback          time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		TrendThreshold:    2.0,
		AnomalyMultiplier: 3.0,
		AnomalyMinPoints:  10,
		Lookback:          30 * 24 * time.Hour,
	}
}

// Engine binds the pure analysis functions to configured thresholds.
type Engine struct {
	cfg    Config
	period string
}

func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.AnomalyMultiplier <= 0 {
		cfg.AnomalyMultiplier = def.AnomalyMultiplier
	}
	if cfg.AnomalyMinPoints <= 0 {
		cfg.AnomalyMinPoints = def.AnomalyMinPoints
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	return &Engine{cfg: cfg, period: util.PeriodLabel(cfg.Lookback)}
}

func (e *Engine) Lookback() time.Duration { return e.cfg.Lookback }

// Statistics computes the snapshot for all tracked metals, labelled with the lookback period.
func (e *Engine) Statistics(window []models.Observation) models.StatisticsSnapshot {
	snap := ComputeStatistics(window, models.Metals)
	snap.Period = e.period
	return snap
}

func (e *Engine) Trend(window []models.Observation) models.TrendSignal {
	return ClassifyTrend(window, e.cfg.TrendThreshold)
}

func (e *Engine) Anomalies(window []models.Observation) []models.AnomalyRecord {
	return DetectAnomalies(window, e.cfg.AnomalyMultiplier, e.cfg.AnomalyMinPoints)
}
