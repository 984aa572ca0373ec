package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MetalPulse/internal/domain/models"
	xhttp "MetalPulse/pkg/http"
)

const geminiName = "gemini"

// GeminiConfig configures the hosted Gemini summarizer.
type GeminiConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
	Attempts int
}

// GeminiSummarizer calls the generateContent REST endpoint.
type GeminiSummarizer struct {
	base     *HTTPServiceBase
	apiKey   string
	model    string
	attempts int
}

func NewGeminiSummarizer(cfg GeminiConfig) (*GeminiSummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w: api key not set", models.ErrSummarizerUnavailable)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiSummarizer{
		base:     NewHTTPServiceBase(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		attempts: cfg.Attempts,
	}, nil
}

func (g *GeminiSummarizer) Name() string { return g.model }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

var errEmptyCompletion = errors.New("gemini: empty completion")

func (g *GeminiSummarizer) Summarize(ctx context.Context, nc models.NarrativeContext) (string, error) {
	req := geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: BuildPrompt(nc)}}}}}

	var resp geminiResponse
	path := "/models/" + g.model + ":generateContent"
	query := map[string][]string{"key": {g.apiKey}}
	if err := g.base.PostJSONWithRetry(ctx, path, query, req, &resp, g.attempts); err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", errEmptyCompletion
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

func asStatusError(err error) (*xhttp.StatusError, bool) {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
