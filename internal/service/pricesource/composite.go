package pricesource

import (
	"context"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/domain/service"
	applogger "MetalPulse/pkg/logger"
)

// CompositeSource takes every metal from base and replaces gold with the
// local quote when it is available.
type CompositeSource struct {
	base   service.PriceSource
	gold   GoldQuoter
	logger *applogger.Logger
}

func NewCompositeSource(base service.PriceSource, gold GoldQuoter, logger *applogger.Logger) *CompositeSource {
	return &CompositeSource{base: base, gold: gold, logger: logger}
}

func (c *CompositeSource) Name() string { return c.base.Name() + "+" + c.gold.Name() }

func (c *CompositeSource) Fetch(ctx context.Context) (models.Observation, error) {
	obs, err := c.base.Fetch(ctx)
	if err != nil {
		return models.Observation{}, err
	}

	price, err := c.gold.GoldPerTael(ctx)
	if err != nil {
		c.logger.Warn("local gold quote unavailable, keeping international price",
			applogger.String("source", c.gold.Name()),
			applogger.Error(err),
		)
		return obs, nil
	}

	obs.GoldPrice = price
	obs.Source = obs.Source + " / Taiwan Bank"
	return obs, nil
}
