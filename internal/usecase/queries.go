package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MetalPulse/internal/domain/models"
	drepo "MetalPulse/internal/domain/repository"
	"MetalPulse/pkg/util"
)

// QueryService serves the read-only HTTP surface from the store.
type QueryService struct {
	store drepo.Store
	now   func() time.Time
}

func NewQueryService(store drepo.Store) *QueryService {
	return &QueryService{store: store, now: time.Now}
}

// Latest returns the newest observation, snapshot and narrative. Kinds with no
// data yet are nil; ErrNotFound only when the store is entirely empty.
func (q *QueryService) Latest(ctx context.Context) (models.LatestView, error) {
	var v models.LatestView

	o, err := q.store.LatestObservation(ctx)
	switch {
	case err == nil:
		v.Observation = &o
	case !errors.Is(err, models.ErrNotFound):
		return v, fmt.Errorf("latest observation: %w", err)
	}

	s, err := q.store.LatestSnapshot(ctx)
	switch {
	case err == nil:
		v.Statistics = &s
	case !errors.Is(err, models.ErrNotFound):
		return v, fmt.Errorf("latest snapshot: %w", err)
	}

	n, err := q.store.LatestNarrative(ctx)
	switch {
	case err == nil:
		v.Narrative = &n
	case !errors.Is(err, models.ErrNotFound):
		return v, fmt.Errorf("latest narrative: %w", err)
	}

	if v.Observation == nil && v.Statistics == nil && v.Narrative == nil {
		return v, models.ErrNotFound
	}
	return v, nil
}

// History returns the last days of observations as parallel arrays.
func (q *QueryService) History(ctx context.Context, days int) (models.HistorySeries, error) {
	end := q.now()
	window, err := q.store.QueryWindow(ctx, end.Add(-util.Days(days)), end)
	if err != nil {
		return models.HistorySeries{}, fmt.Errorf("history: %w", err)
	}

	h := models.HistorySeries{
		Timestamps:     make([]time.Time, 0, len(window)),
		GoldPrices:     make([]float64, 0, len(window)),
		SilverPrices:   make([]float64, 0, len(window)),
		PlatinumPrices: make([]*float64, 0, len(window)),
		Count:          len(window),
	}
	for _, o := range window {
		h.Timestamps = append(h.Timestamps, o.Timestamp)
		h.GoldPrices = append(h.GoldPrices, o.GoldPrice)
		h.SilverPrices = append(h.SilverPrices, o.SilverPrice)
		h.PlatinumPrices = append(h.PlatinumPrices, o.PlatinumPrice)
	}
	return h, nil
}

func (q *QueryService) CurrentPrices(ctx context.Context) (models.Observation, error) {
	return q.store.LatestObservation(ctx)
}

// MonthlyStatistics returns the newest snapshot; snapshots cover the configured lookback.
func (q *QueryService) MonthlyStatistics(ctx context.Context) (models.StatisticsSnapshot, error) {
	return q.store.LatestSnapshot(ctx)
}

func (q *QueryService) LatestNarrative(ctx context.Context) (models.NarrativeSummary, error) {
	return q.store.LatestNarrative(ctx)
}

// StoreHealth pings the backing store.
func (q *QueryService) StoreHealth(ctx context.Context) (string, error) {
	return q.store.Name(), q.store.Health(ctx)
}
