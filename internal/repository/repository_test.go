package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/cache"
	applogger "MetalPulse/pkg/logger"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func obsAt(day int, gold float64) models.Observation {
	return models.Observation{Timestamp: base.AddDate(0, 0, day), GoldPrice: gold, SilverPrice: 115, Source: "test"}
}

func TestMemoryStoreQueryWindowIsInclusiveAndOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, o := range []models.Observation{obsAt(3, 9700), obsAt(1, 9500), obsAt(2, 9600), obsAt(5, 9900)} {
		require.NoError(t, s.SaveObservation(ctx, o))
	}

	got, err := s.QueryWindow(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{9500, 9600, 9700}, []float64{got[0].GoldPrice, got[1].GoldPrice, got[2].GoldPrice})

	empty, err := s.QueryWindow(ctx, base.AddDate(0, 1, 0), base.AddDate(0, 2, 0))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	latest, err := s.LatestObservation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9900.0, latest.GoldPrice)
}

func TestMemoryStoreLatestNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.LatestObservation(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = s.LatestNarrative(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreCopiesPlatinum(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	p := 3000.0
	o := obsAt(0, 9500)
	o.PlatinumPrice = &p
	require.NoError(t, s.SaveObservation(ctx, o))
	p = 1

	got, err := s.LatestObservation(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.PlatinumPrice)
	assert.Equal(t, 3000.0, *got.PlatinumPrice)
}

func TestMemoryStoreConcurrentWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.SaveObservation(ctx, obsAt(i, 9000+float64(i)))
		}(i)
	}
	wg.Wait()

	got, err := s.QueryWindow(ctx, base, base.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp))
	}
}

type countingStore struct {
	*MemoryStore
	latestCalls int
}

func (c *countingStore) LatestSnapshot(ctx context.Context) (models.StatisticsSnapshot, error) {
	c.latestCalls++
	return c.MemoryStore.LatestSnapshot(ctx)
}

func TestCachedStoreWritesThrough(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	c := cache.NewMemoryCache()
	s := NewCachedStore(inner, c, time.Minute, applogger.NewNop())
	defer s.Close()
	ctx := context.Background()

	snap := models.StatisticsSnapshot{Timestamp: base, Period: "30天", DataPoints: 4}
	snap.PerMetal.Gold = models.MetalStats{Avg: 9650, Max: 9900, Min: 9500, Std: 165.83, Median: 9600}
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, inner.latestCalls)
	assert.True(t, got.Timestamp.Equal(base))
	assert.Equal(t, snap.PerMetal, got.PerMetal)
	assert.Equal(t, "memory+cache", s.Name())
}

func TestCachedStoreKeepsNewestOnOutOfOrderSave(t *testing.T) {
	s := NewCachedStore(NewMemoryStore(), cache.NewMemoryCache(), time.Minute, applogger.NewNop())
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SaveObservation(ctx, obsAt(5, 9900)))
	require.NoError(t, s.SaveObservation(ctx, obsAt(1, 9500)))

	got, err := s.LatestObservation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9900.0, got.GoldPrice)
}

func TestCachedStoreFillsOnMiss(t *testing.T) {
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	ctx := context.Background()
	require.NoError(t, inner.SaveSnapshot(ctx, models.StatisticsSnapshot{Timestamp: base, DataPoints: 1}))

	s := NewCachedStore(inner, cache.NewMemoryCache(), time.Minute, applogger.NewNop())
	defer s.Close()

	_, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	_, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.latestCalls)

	_, err = s.LatestNarrative(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCacheCycleLock(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	a := NewCacheCycleLock(c, time.Minute)
	b := NewCacheCycleLock(c, time.Minute)

	ok, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, b.Release(ctx), cache.ErrLockNotHeld)
	require.NoError(t, a.Release(ctx))
	ok, err = b.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

type recordingProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaPublisherKeysByRunID(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewKafkaPublisher(prod, "metalpulse.cycles", applogger.NewNop())

	run := models.NewPipelineRun("schedule", base)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.OnCycle(ctx, run)

	assert.Equal(t, "metalpulse.cycles", prod.topic)
	assert.Equal(t, run.ID.String(), string(prod.key))
	assert.Same(t, run, prod.value)

	prod.err = errors.New("broker down")
	assert.NotPanics(t, func() { pub.OnCycle(context.Background(), run) })
}

func TestSchemaUsesDatabase(t *testing.T) {
	stmts := Schema("metalpulse")
	require.Len(t, stmts, 4)
	for _, s := range stmts[1:] {
		assert.True(t, strings.Contains(s, "metalpulse."), s)
		assert.Contains(t, s, "MergeTree")
	}
}
