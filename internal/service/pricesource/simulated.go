package pricesource

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"MetalPulse/internal/domain/models"
	"MetalPulse/pkg/util"
)

const simulatedName = "simulated"

// maxStep bounds one random-walk move as a fraction of the current price.
const maxStep = 0.005

type SimulatedConfig struct {
	Seed     int64
	Gold     float64
	Silver   float64
	Platinum float64 // zero disables platinum
}

// SimulatedSource is a seeded random walk. The same seed yields the same series.
type SimulatedSource struct {
	mu       sync.Mutex
	rng      *rand.Rand
	gold     float64
	silver   float64
	platinum float64
	now      func() time.Time
}

func NewSimulatedSource(cfg SimulatedConfig) *SimulatedSource {
	if cfg.Gold <= 0 {
		cfg.Gold = 9500
	}
	if cfg.Silver <= 0 {
		cfg.Silver = 115
	}
	return &SimulatedSource{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		gold:     cfg.Gold,
		silver:   cfg.Silver,
		platinum: cfg.Platinum,
		now:      time.Now,
	}
}

func (s *SimulatedSource) Name() string { return simulatedName }

func (s *SimulatedSource) Fetch(ctx context.Context) (models.Observation, error) {
	if err := ctx.Err(); err != nil {
		return models.Observation{}, &SourceError{Source: simulatedName, Err: err}
	}
	return s.Next(s.now()), nil
}

// Next advances the walk one step and stamps the observation with ts.
func (s *SimulatedSource) Next(ts time.Time) models.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gold = s.step(s.gold)
	s.silver = s.step(s.silver)
	obs := models.Observation{
		Timestamp:   ts,
		GoldPrice:   util.Round2(s.gold),
		SilverPrice: util.Round2(s.silver),
		Source:      simulatedName,
	}
	if s.platinum > 0 {
		s.platinum = s.step(s.platinum)
		obs.PlatinumPrice = models.Float(util.Round2(s.platinum))
	}
	return obs
}

// Series generates n observations spaced by interval, ending at end.
func (s *SimulatedSource) Series(end time.Time, n int, interval time.Duration) []models.Observation {
	out := make([]models.Observation, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, s.Next(end.Add(-time.Duration(i)*interval)))
	}
	return out
}

func (s *SimulatedSource) step(p float64) float64 {
	return p * (1 + (s.rng.Float64()*2-1)*maxStep)
}
