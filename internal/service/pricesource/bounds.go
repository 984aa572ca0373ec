package pricesource

import (
	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/config"
)

// Bounds are the sanity bands quotes are expected to fall in.
type Bounds struct {
	Gold     config.Range
	Silver   config.Range
	Platinum config.Range
}

// OutOfBounds lists the metals whose quote lies outside its band, in metal order.
func (b Bounds) OutOfBounds(o models.Observation) []models.Metal {
	bands := map[models.Metal]config.Range{
		models.Gold:     b.Gold,
		models.Silver:   b.Silver,
		models.Platinum: b.Platinum,
	}
	var out []models.Metal
	for _, m := range models.Metals {
		p, ok := o.Price(m)
		if ok && !bands[m].Contains(p) {
			out = append(out, m)
		}
	}
	return out
}
