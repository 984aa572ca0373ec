package models

import "time"

// PerMetal holds one value per tracked metal so result schemas never drop a metal.
type PerMetal[T any] struct {
	Gold     T `json:"gold"`
	Silver   T `json:"silver"`
	Platinum T `json:"platinum"`
}

func (p *PerMetal[T]) Get(m Metal) T {
	switch m {
	case Silver:
		return p.Silver
	case Platinum:
		return p.Platinum
	default:
		return p.Gold
	}
}

func (p *PerMetal[T]) Set(m Metal, v T) {
	switch m {
	case Gold:
		p.Gold = v
	case Silver:
		p.Silver = v
	case Platinum:
		p.Platinum = v
	}
}

// MetalStats are the descriptive statistics of one metal over a window, rounded to 2 decimals.
type MetalStats struct {
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
	Std    float64 `json:"std"`
	Median float64 `json:"median"`
}

type StatisticsSnapshot struct {
	Timestamp  time.Time            `json:"timestamp"`
	Period     string               `json:"period"`
	PerMetal   PerMetal[MetalStats] `json:"per_metal"`
	DataPoints int                  `json:"data_points"`
}

type TrendDirection string

const (
	TrendRising           TrendDirection = "rising"
	TrendFalling          TrendDirection = "falling"
	TrendFlat             TrendDirection = "flat"
	TrendInsufficientData TrendDirection = "insufficient_data"
)

type MetalTrend struct {
	Direction     TrendDirection `json:"direction"`
	ChangePercent float64        `json:"change_percent"`
}

type TrendSignal struct {
	PerMetal PerMetal[MetalTrend] `json:"per_metal"`
}

// InsufficientTrend is the signal reported when a window cannot be split.
func InsufficientTrend() TrendSignal {
	flat := MetalTrend{Direction: TrendInsufficientData}
	return TrendSignal{PerMetal: PerMetal[MetalTrend]{Gold: flat, Silver: flat, Platinum: flat}}
}

// AnomalyRecord flags one observation. Transient: reported per cycle, never stored.
type AnomalyRecord struct {
	Metal               Metal     `json:"metal"`
	Timestamp           time.Time `json:"timestamp"`
	Price               float64   `json:"price"`
	DeviationInStdUnits float64   `json:"deviation_in_std_units"`
}
