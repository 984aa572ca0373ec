package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the pipeline metrics contract using Prometheus.
type Recorder struct {
	cycles            *prometheus.CounterVec
	stageErrors       *prometheus.CounterVec
	sourceFetches     *prometheus.CounterVec
	summarizerResults *prometheus.CounterVec
	anomalies         *prometheus.CounterVec
	lastPrice         *prometheus.GaugeVec
	cycleDuration     prometheus.Histogram
	stageDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass nil for the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metalpulse_cycles_total",
			Help: "Pipeline cycles by outcome",
		}, []string{"result"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metalpulse_stage_errors_total",
			Help: "Errors recorded per pipeline stage",
		}, []string{"stage"}),
		sourceFetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metalpulse_source_fetches_total",
			Help: "Price source fetch attempts by provider and result",
		}, []string{"source", "result"}),
		summarizerResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metalpulse_summaries_total",
			Help: "Narrative summaries by producer (model or fallback)",
		}, []string{"producer"}),
		anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "metalpulse_anomalies_total",
			Help: "Anomalous prices flagged per metal",
		}, []string{"metal"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "metalpulse_last_price_twd",
			Help: "Last collected price per metal in TWD per tael",
		}, []string{"metal"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "metalpulse_cycle_duration_seconds",
			Help:    "Wall time of a full pipeline cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metalpulse_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

func (r *Recorder) RecordCycle(success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "aborted"
	}
	r.cycles.WithLabelValues(result).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordStage(stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		r.stageErrors.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) RecordSourceFetch(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.sourceFetches.WithLabelValues(source, result).Inc()
}

// RecordSummary counts which producer wrote the narrative ("model" or "fallback").
func (r *Recorder) RecordSummary(producer string) {
	r.summarizerResults.WithLabelValues(producer).Inc()
}

func (r *Recorder) RecordAnomaly(metal string) {
	r.anomalies.WithLabelValues(metal).Inc()
}

// RecordLastPrice records the last price for a metal.
func (r *Recorder) RecordLastPrice(metal string, price float64) {
	r.lastPrice.WithLabelValues(metal).Set(price)
}
