package repository

import (
	"context"
	"errors"
	"time"

	"MetalPulse/internal/domain/models"
	drepo "MetalPulse/internal/domain/repository"
	"MetalPulse/pkg/cache"
	applogger "MetalPulse/pkg/logger"
)

// CachedStore writes through to the cache for the latest-entity reads the HTTP
// surface hits on every request. Cache failures never fail the store call.
type CachedStore struct {
	drepo.Store
	cache  cache.Service
	ttl    time.Duration
	logger *applogger.Logger
}

var (
	keyLatestObservation = cache.Key("latest", "observation")
	keyLatestSnapshot    = cache.Key("latest", "snapshot")
	keyLatestNarrative   = cache.Key("latest", "narrative")
)

func NewCachedStore(store drepo.Store, c cache.Service, ttl time.Duration, logger *applogger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{Store: store, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedStore) SaveObservation(ctx context.Context, o models.Observation) error {
	if err := s.Store.SaveObservation(ctx, o); err != nil {
		return err
	}
	// Out-of-order inserts must not replace a newer cached value.
	var cur models.Observation
	if err := s.cache.Get(ctx, keyLatestObservation, &cur); err == nil && cur.Timestamp.After(o.Timestamp) {
		return nil
	}
	s.put(ctx, keyLatestObservation, o)
	return nil
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap models.StatisticsSnapshot) error {
	if err := s.Store.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	var cur models.StatisticsSnapshot
	if err := s.cache.Get(ctx, keyLatestSnapshot, &cur); err == nil && cur.Timestamp.After(snap.Timestamp) {
		return nil
	}
	s.put(ctx, keyLatestSnapshot, snap)
	return nil
}

func (s *CachedStore) SaveNarrative(ctx context.Context, n models.NarrativeSummary) error {
	if err := s.Store.SaveNarrative(ctx, n); err != nil {
		return err
	}
	var cur models.NarrativeSummary
	if err := s.cache.Get(ctx, keyLatestNarrative, &cur); err == nil && cur.Timestamp.After(n.Timestamp) {
		return nil
	}
	s.put(ctx, keyLatestNarrative, n)
	return nil
}

func (s *CachedStore) LatestObservation(ctx context.Context) (models.Observation, error) {
	var o models.Observation
	if s.get(ctx, keyLatestObservation, &o) {
		return o, nil
	}
	o, err := s.Store.LatestObservation(ctx)
	if err == nil {
		s.put(ctx, keyLatestObservation, o)
	}
	return o, err
}

func (s *CachedStore) LatestSnapshot(ctx context.Context) (models.StatisticsSnapshot, error) {
	var snap models.StatisticsSnapshot
	if s.get(ctx, keyLatestSnapshot, &snap) {
		return snap, nil
	}
	snap, err := s.Store.LatestSnapshot(ctx)
	if err == nil {
		s.put(ctx, keyLatestSnapshot, snap)
	}
	return snap, err
}

func (s *CachedStore) LatestNarrative(ctx context.Context) (models.NarrativeSummary, error) {
	var n models.NarrativeSummary
	if s.get(ctx, keyLatestNarrative, &n) {
		return n, nil
	}
	n, err := s.Store.LatestNarrative(ctx)
	if err == nil {
		s.put(ctx, keyLatestNarrative, n)
	}
	return n, err
}

func (s *CachedStore) Name() string { return s.Store.Name() + "+cache" }

func (s *CachedStore) Close() error {
	return errors.Join(s.Store.Close(), s.cache.Close())
}

func (s *CachedStore) get(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return false
}

func (s *CachedStore) put(ctx context.Context, key string, v interface{}) {
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		s.logger.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}
