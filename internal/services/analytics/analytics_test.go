package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func obs(i int, gold, silver float64) models.Observation {
	return models.Observation{
		Timestamp:   t0.Add(time.Duration(i) * time.Hour),
		GoldPrice:   gold,
		SilverPrice: silver,
		Source:      "test",
	}
}

func goldSeries(prices ...float64) []models.Observation {
	out := make([]models.Observation, len(prices))
	for i, p := range prices {
		out[i] = obs(i, p, 100)
	}
	return out
}

func TestComputeStatisticsEmptyWindow(t *testing.T) {
	snap := ComputeStatistics(nil, models.Metals)
	assert.Equal(t, 0, snap.DataPoints)
	assert.Equal(t, models.MetalStats{}, snap.PerMetal.Gold)
	assert.Equal(t, models.MetalStats{}, snap.PerMetal.Silver)
	assert.Equal(t, models.MetalStats{}, snap.PerMetal.Platinum)
	assert.True(t, snap.Timestamp.IsZero())
}

func TestEndToEndScenario(t *testing.T) {
	window := goldSeries(9500, 9500, 9700, 9900)

	snap := ComputeStatistics(window, models.Metals)
	assert.Equal(t, 4, snap.DataPoints)
	assert.Equal(t, 9650.0, snap.PerMetal.Gold.Avg)
	assert.Equal(t, 9900.0, snap.PerMetal.Gold.Max)
	assert.Equal(t, 9500.0, snap.PerMetal.Gold.Min)
	assert.Equal(t, 9600.0, snap.PerMetal.Gold.Median)
	assert.Equal(t, 165.83, snap.PerMetal.Gold.Std)
	// platinum never quoted: stable zero block
	assert.Equal(t, models.MetalStats{}, snap.PerMetal.Platinum)

	signal := ClassifyTrend(window, 2.0)
	assert.Equal(t, models.TrendRising, signal.PerMetal.Gold.Direction)
	assert.Equal(t, 3.16, signal.PerMetal.Gold.ChangePercent)
	assert.Equal(t, models.TrendFlat, signal.PerMetal.Silver.Direction)
	assert.Equal(t, models.TrendInsufficientData, signal.PerMetal.Platinum.Direction)
}

func TestComputeStatisticsMedianOddCount(t *testing.T) {
	snap := ComputeStatistics(goldSeries(3, 1, 2), []models.Metal{models.Gold})
	assert.Equal(t, 2.0, snap.PerMetal.Gold.Median)
	assert.Equal(t, 0.82, snap.PerMetal.Gold.Std)
}

func TestClassifyTrendSingleObservation(t *testing.T) {
	signal := ClassifyTrend(goldSeries(9500), 2.0)
	for _, m := range models.Metals {
		got := signal.PerMetal.Get(m)
		assert.Equal(t, models.TrendInsufficientData, got.Direction, m)
		assert.Zero(t, got.ChangePercent)
	}

	assert.Equal(t, models.InsufficientTrend(), ClassifyTrend(nil, 2.0))
}

func TestClassifyTrendZeroFirstHalfMean(t *testing.T) {
	signal := ClassifyTrend(goldSeries(0, 0, 9700, 9900), 2.0)
	assert.Equal(t, models.TrendInsufficientData, signal.PerMetal.Gold.Direction)
	assert.Zero(t, signal.PerMetal.Gold.ChangePercent)
}

func TestClassifyTrendDirections(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   models.TrendDirection
		change float64
	}{
		{"falling", []float64{10000, 10000, 9500, 9500}, models.TrendFalling, -5},
		{"flat within threshold", []float64{10000, 10000, 10100, 10100}, models.TrendFlat, 1},
		{"exactly at threshold is flat", []float64{100, 100, 102, 102}, models.TrendFlat, 2},
		{"just above threshold rounds to 2 but rises", []float64{10000, 10200.4}, models.TrendRising, 2},
		{"just below negative threshold rounds to -2 but falls", []float64{10000, 9799.6}, models.TrendFalling, -2},
		{"odd length puts extra point in second half", []float64{100, 110, 110}, models.TrendRising, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyTrend(goldSeries(tt.prices...), 2.0).PerMetal.Gold
			assert.Equal(t, tt.want, got.Direction)
			assert.Equal(t, tt.change, got.ChangePercent)
		})
	}
}

func TestClassifyTrendHalfWithoutMetal(t *testing.T) {
	window := goldSeries(100, 100, 110, 110)
	window[2].PlatinumPrice = models.Float(1000)
	window[3].PlatinumPrice = models.Float(1010)

	signal := ClassifyTrend(window, 2.0)
	assert.Equal(t, models.TrendInsufficientData, signal.PerMetal.Platinum.Direction)
	assert.Equal(t, models.TrendRising, signal.PerMetal.Gold.Direction)
}

func TestWindowResorting(t *testing.T) {
	ordered := goldSeries(9500, 9520, 9480, 9700, 9900, 9810)
	shuffled := []models.Observation{ordered[4], ordered[0], ordered[5], ordered[2], ordered[1], ordered[3]}

	assert.Equal(t, ComputeStatistics(ordered, models.Metals), ComputeStatistics(shuffled, models.Metals))
	assert.Equal(t, ClassifyTrend(ordered, 2.0), ClassifyTrend(shuffled, 2.0))
	assert.Equal(t, DetectAnomalies(ordered, 1.0, 2), DetectAnomalies(shuffled, 1.0, 2))
}

func TestDetectAnomaliesFlagsSingleSpike(t *testing.T) {
	// 16 flat points plus one spike put the spike exactly 4 std from the mean.
	prices := make([]float64, 17)
	for i := range prices {
		prices[i] = 9500
	}
	prices[9] = 11200
	window := goldSeries(prices...)

	got := DetectAnomalies(window, 3.0, 10)
	require.Len(t, got, 1)
	assert.Equal(t, models.Gold, got[0].Metal)
	assert.Equal(t, 11200.0, got[0].Price)
	assert.Equal(t, window[9].Timestamp, got[0].Timestamp)
	assert.InDelta(t, 4.0, got[0].DeviationInStdUnits, 1e-9)
}

func TestDetectAnomaliesTenPointWindow(t *testing.T) {
	// with ten points a lone spike sits sqrt(9) = 3 std away
	prices := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 190}
	got := DetectAnomalies(goldSeries(prices...), 2.5, 10)
	require.Len(t, got, 1)
	assert.InDelta(t, 3.0, got[0].DeviationInStdUnits, 1e-9)

	assert.Empty(t, DetectAnomalies(goldSeries(prices...), 3.0, 10))
}

func TestDetectAnomaliesWarmUp(t *testing.T) {
	got := DetectAnomalies(goldSeries(100, 100, 100, 100, 100, 100, 100, 100, 5000), 3.0, 10)
	assert.Empty(t, got)
}

func TestDetectAnomaliesConstantSeries(t *testing.T) {
	prices := make([]float64, 12)
	for i := range prices {
		prices[i] = 9600
	}
	assert.Empty(t, DetectAnomalies(goldSeries(prices...), 0.5, 10))
}

func TestDetectAnomaliesMetalOrder(t *testing.T) {
	window := make([]models.Observation, 17)
	for i := range window {
		window[i] = obs(i, 9500, 100)
	}
	window[3].SilverPrice = 300
	window[12].GoldPrice = 12000

	got := DetectAnomalies(window, 3.0, 10)
	require.Len(t, got, 2)
	assert.Equal(t, models.Gold, got[0].Metal)
	assert.Equal(t, models.Silver, got[1].Metal)
}

func TestEngineLabelsPeriod(t *testing.T) {
	e := NewEngine(DefaultConfig())
	snap := e.Statistics(goldSeries(9500, 9600))
	assert.Equal(t, "monthly", snap.Period)
	assert.Equal(t, 2, snap.DataPoints)
	assert.Equal(t, 30*24*time.Hour, e.Lookback())
}
