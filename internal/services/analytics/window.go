package analytics

import (
	"sort"

	"MetalPulse/internal/domain/models"
)

// SortWindow returns a copy of window ordered ascending by timestamp.
// Equal timestamps keep their input order.
func SortWindow(window []models.Observation) []models.Observation {
	out := make([]models.Observation, len(window))
	copy(out, window)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// series extracts the prices of m, skipping observations that do not carry it.
func series(window []models.Observation, m models.Metal) []float64 {
	values := make([]float64, 0, len(window))
	for _, o := range window {
		if p, ok := o.Price(m); ok {
			values = append(values, p)
		}
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
