package analytics

import (
	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/util"
)

// ClassifyTrend compares the mean of the second half of the window against the
// first half. threshold is in percent: change above +threshold is rising,
// below -threshold falling, otherwise flat.
func ClassifyTrend(window []models.Observation, threshold float64) models.TrendSignal {
	if len(window) < 2 {
		return models.InsufficientTrend()
	}

	sorted := SortWindow(window)
	mid := len(sorted) / 2
	first, second := sorted[:mid], sorted[mid:]

	var signal models.TrendSignal
	for _, m := range models.Metals {
		signal.PerMetal.Set(m, classifyMetal(series(first, m), series(second, m), threshold))
	}
	return signal
}

func classifyMetal(first, second []float64, threshold float64) models.MetalTrend {
	if len(first) == 0 || len(second) == 0 {
		return models.MetalTrend{Direction: models.TrendInsufficientData}
	}

	m1, m2 := mean(first), mean(second)
	if m1 == 0 {
		return models.MetalTrend{Direction: models.TrendInsufficientData}
	}

	// The threshold applies to the exact change; only the reported figure is rounded.
	change := (m2 - m1) / m1 * 100
	direction := models.TrendFlat
	switch {
	case change > threshold:
		direction = models.TrendRising
	case change < -threshold:
		direction = models.TrendFalling
	}
	return models.MetalTrend{Direction: direction, ChangePercent: util.Round2(change)}
}
