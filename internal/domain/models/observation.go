package models

import (
	"errors"
	"math"
	"time"
)

// Metal identifies a tracked precious metal.
type Metal string

const (
	Gold     Metal = "gold"
	Silver   Metal = "silver"
	Platinum Metal = "platinum"
)

// Metals is the fixed processing order used everywhere results are listed.
var Metals = []Metal{Gold, Silver, Platinum}

// Observation is one price quote, in TWD per tael. Immutable once stored.
type Observation struct {
	Timestamp     time.Time `json:"timestamp"`
	GoldPrice     float64   `json:"gold_price"`
	SilverPrice   float64   `json:"silver_price"`
	PlatinumPrice *float64  `json:"platinum_price,omitempty"`
	Source        string    `json:"source"`
}

// Price returns the quote for m and whether the observation carries one.
func (o Observation) Price(m Metal) (float64, bool) {
	switch m {
	case Gold:
		return o.GoldPrice, true
	case Silver:
		return o.SilverPrice, true
	case Platinum:
		if o.PlatinumPrice == nil {
			return 0, false
		}
		return *o.PlatinumPrice, true
	}
	return 0, false
}

var (
	ErrMissingTimestamp = errors.New("observation: timestamp is required")
	ErrMissingSource    = errors.New("observation: source is required")
	ErrNonPositivePrice = errors.New("observation: prices must be positive")
	ErrNonFinitePrice   = errors.New("observation: prices must be finite")
)

// CheckRequired validates the fields an observation cannot be stored without.
// Sanity bands are a separate, warn-only check.
func (o Observation) CheckRequired() error {
	if o.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if o.Source == "" {
		return ErrMissingSource
	}
	prices := []float64{o.GoldPrice, o.SilverPrice}
	if o.PlatinumPrice != nil {
		prices = append(prices, *o.PlatinumPrice)
	}
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return ErrNonFinitePrice
		}
		if p <= 0 {
			return ErrNonPositivePrice
		}
	}
	return nil
}

// Float returns a pointer to v, for optional prices.
func Float(v float64) *float64 {
	return &v
}
