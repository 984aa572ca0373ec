package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"MetalPulse/internal/domain/models"
)

// MemoryStore keeps everything in process. Used for single-instance runs and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	observations []models.Observation
	snapshots    []models.StatisticsSnapshot
	narratives   []models.NarrativeSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// insertByTime keeps s ordered by timestamp; equal timestamps keep arrival order.
func insertByTime[T any](s []T, v T, ts func(T) time.Time) []T {
	t := ts(v)
	i := sort.Search(len(s), func(i int) bool { return ts(s[i]).After(t) })
	s = append(s, v)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func observationTime(o models.Observation) time.Time { return o.Timestamp }
func snapshotTime(s models.StatisticsSnapshot) time.Time { return s.Timestamp }
func narrativeTime(n models.NarrativeSummary) time.Time { return n.Timestamp }

func (m *MemoryStore) SaveObservation(_ context.Context, o models.Observation) error {
	if o.PlatinumPrice != nil {
		o.PlatinumPrice = models.Float(*o.PlatinumPrice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations = insertByTime(m.observations, o, observationTime)
	return nil
}

func (m *MemoryStore) SaveSnapshot(_ context.Context, s models.StatisticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = insertByTime(m.snapshots, s, snapshotTime)
	return nil
}

func (m *MemoryStore) SaveNarrative(_ context.Context, n models.NarrativeSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.narratives = insertByTime(m.narratives, n, narrativeTime)
	return nil
}

func (m *MemoryStore) QueryWindow(_ context.Context, start, end time.Time) ([]models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lo := sort.Search(len(m.observations), func(i int) bool { return !m.observations[i].Timestamp.Before(start) })
	hi := sort.Search(len(m.observations), func(i int) bool { return m.observations[i].Timestamp.After(end) })
	if lo >= hi {
		return []models.Observation{}, nil
	}
	out := make([]models.Observation, hi-lo)
	copy(out, m.observations[lo:hi])
	return out, nil
}

func (m *MemoryStore) LatestObservation(context.Context) (models.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.observations) == 0 {
		return models.Observation{}, models.ErrNotFound
	}
	return m.observations[len(m.observations)-1], nil
}

func (m *MemoryStore) LatestSnapshot(context.Context) (models.StatisticsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.snapshots) == 0 {
		return models.StatisticsSnapshot{}, models.ErrNotFound
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *MemoryStore) LatestNarrative(context.Context) (models.NarrativeSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.narratives) == 0 {
		return models.NarrativeSummary{}, models.ErrNotFound
	}
	return m.narratives[len(m.narratives)-1], nil
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Health(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
