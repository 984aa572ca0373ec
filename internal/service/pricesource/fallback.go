package pricesource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/domain/service"
	applogger "MetalPulse/pkg/logger"
)

// FallbackSource tries each source in order and returns the first observation.
type FallbackSource struct {
	sources []service.PriceSource
	logger  *applogger.Logger
}

func NewFallbackSource(logger *applogger.Logger, sources ...service.PriceSource) *FallbackSource {
	return &FallbackSource{sources: sources, logger: logger}
}

func (f *FallbackSource) Name() string {
	names := make([]string, 0, len(f.sources))
	for _, s := range f.sources {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

func (f *FallbackSource) Fetch(ctx context.Context) (models.Observation, error) {
	if len(f.sources) == 0 {
		return models.Observation{}, fmt.Errorf("%w: no sources configured", models.ErrSourceUnavailable)
	}

	var errs []error
	for _, s := range f.sources {
		obs, err := s.Fetch(ctx)
		if err == nil {
			return obs, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		f.logger.Warn("price source failed", applogger.String("source", s.Name()), applogger.Error(err))
	}
	return models.Observation{}, fmt.Errorf("%w: %w", models.ErrSourceUnavailable, errors.Join(errs...))
}
