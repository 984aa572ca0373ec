package analytics

import (
	"math"
	"sort"

	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/util"
)

// ComputeStatistics describes every metal in metals over window. An empty
// window, or a metal absent from every observation, yields a zero block.
// The snapshot is stamped with the newest observation time.
func ComputeStatistics(window []models.Observation, metals []models.Metal) models.StatisticsSnapshot {
	sorted := SortWindow(window)

	snap := models.StatisticsSnapshot{DataPoints: len(sorted)}
	if len(sorted) == 0 {
		return snap
	}
	snap.Timestamp = sorted[len(sorted)-1].Timestamp

	for _, m := range metals {
		snap.PerMetal.Set(m, describe(series(sorted, m)))
	}
	return snap
}

func describe(values []float64) models.MetalStats {
	if len(values) == 0 {
		return models.MetalStats{}
	}

	avg := mean(values)
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	return models.MetalStats{
		Avg:    util.Round2(avg),
		Max:    util.Round2(hi),
		Min:    util.Round2(lo),
		Std:    util.Round2(populationStd(values, avg)),
		Median: util.Round2(median(values)),
	}
}

// populationStd is the unrounded population standard deviation.
func populationStd(values []float64, avg float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - avg) * (v - avg)
	}
	return math.Sqrt(sq / float64(len(values)))
}

func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)

	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
