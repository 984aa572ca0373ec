package narrative

import (
	"context"
	"fmt"
	"time"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/domain/service"
	applogger "MetalPulse/pkg/logger"
)

const (
	defaultTimeout            = 30 * time.Second
	defaultModelConfidence    = 0.85
	defaultFallbackConfidence = 0.5
)

type Option func(*Requester)

// WithSummarizer sets the external summarizer. Without one every request uses the fallback.
func WithSummarizer(s service.Summarizer) Option {
	return func(r *Requester) { r.summarizer = s }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Requester) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithConfidence sets the confidence recorded for model-written narratives.
func WithConfidence(c float64) Option {
	return func(r *Requester) {
		if c > 0 {
			r.confidence = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Requester) { r.now = now }
}

// Requester produces a NarrativeSummary for every context, falling back to a
// deterministic template when the summarizer is missing or fails.
type Requester struct {
	summarizer service.Summarizer
	timeout    time.Duration
	confidence float64
	logger     *applogger.Logger
	now        func() time.Time
}

func NewRequester(logger *applogger.Logger, opts ...Option) *Requester {
	r := &Requester{
		timeout:    defaultTimeout,
		confidence: defaultModelConfidence,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Configured reports whether an external summarizer is wired.
func (r *Requester) Configured() bool { return r.summarizer != nil }

// Request always returns a usable summary. The error is non-nil only when a
// configured summarizer failed and the fallback was used instead.
func (r *Requester) Request(ctx context.Context, nc models.NarrativeContext) (models.NarrativeSummary, error) {
	if r.summarizer == nil {
		return r.fallback(nc), nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.summarizer.Summarize(cctx, nc)
	if err != nil {
		r.logger.Warn("summarizer failed, using template narrative",
			applogger.String("summarizer", r.summarizer.Name()),
			applogger.Duration("elapsed_ms", time.Since(start)),
			applogger.Error(err),
		)
		return r.fallback(nc), fmt.Errorf("%w: %v", models.ErrSummarizerUnavailable, err)
	}

	s := ParseSections(text)
	return models.NarrativeSummary{
		Timestamp:        r.now(),
		MarketAnalysis:   s.MarketAnalysis,
		TrendPrediction:  s.TrendPrediction,
		InvestmentAdvice: s.InvestmentAdvice,
		RiskWarning:      s.RiskWarning,
		SourceModel:      r.summarizer.Name(),
		Confidence:       r.confidence,
	}, nil
}

func (r *Requester) fallback(nc models.NarrativeContext) models.NarrativeSummary {
	return FallbackSummary(nc)
}

// FallbackSummary wraps the template sections as a stored narrative. It is
// stamped with the observation time so the record depends on nc alone.
func FallbackSummary(nc models.NarrativeContext) models.NarrativeSummary {
	s := Fallback(nc)
	return models.NarrativeSummary{
		Timestamp:        nc.Observation.Timestamp,
		MarketAnalysis:   s.MarketAnalysis,
		TrendPrediction:  s.TrendPrediction,
		InvestmentAdvice: s.InvestmentAdvice,
		RiskWarning:      s.RiskWarning,
		SourceModel:      FallbackModel,
		Confidence:       defaultFallbackConfidence,
		Fallback:         true,
	}
}
