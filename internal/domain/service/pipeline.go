package service

import (
	"context"

	"MetalPulse/internal/domain/models"
)

// PriceSource fetches one fresh observation. Any error means collection failed.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context) (models.Observation, error)
}

// Summarizer turns a narrative context into free-form text.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, nc models.NarrativeContext) (string, error)
}
