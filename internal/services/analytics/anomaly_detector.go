package analytics

import (
	"math"

	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/util"
)

// DetectAnomalies flags prices further than multiplier standard deviations from
// the window mean. Windows shorter than minPoints report nothing. Records are
// ordered by metal (gold, silver, platinum) then by timestamp.
func DetectAnomalies(window []models.Observation, multiplier float64, minPoints int) []models.AnomalyRecord {
	if len(window) < minPoints || len(window) == 0 {
		return nil
	}

	sorted := SortWindow(window)
	var out []models.AnomalyRecord

	for _, m := range models.Metals {
		values := series(sorted, m)
		if len(values) == 0 {
			continue
		}
		avg := mean(values)
		std := populationStd(values, avg)
		if std == 0 {
			continue
		}

		for _, o := range sorted {
			p, ok := o.Price(m)
			if !ok {
				continue
			}
			dev := math.Abs(p - avg)
			if dev > multiplier*std {
				out = append(out, models.AnomalyRecord{
					Metal:               m,
					Timestamp:           o.Timestamp,
					Price:               p,
					DeviationInStdUnits: util.Round2(dev / std),
				})
			}
		}
	}
	return out
}
