package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
	applogger "MetalPulse/pkg/logger"
)

func sampleContext() models.NarrativeContext {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return models.NarrativeContext{
		Observation: models.Observation{Timestamp: ts, GoldPrice: 9900, SilverPrice: 118, Source: "yahoo"},
		Statistics: models.StatisticsSnapshot{
			Timestamp:  ts,
			Period:     "30天",
			DataPoints: 4,
			PerMetal: models.PerMetal[models.MetalStats]{
				Gold:   models.MetalStats{Avg: 9650, Max: 9900, Min: 9500, Std: 165.83, Median: 9600},
				Silver: models.MetalStats{Avg: 116, Max: 118, Min: 114, Std: 1.5, Median: 116},
			},
		},
		Trend: models.TrendSignal{PerMetal: models.PerMetal[models.MetalTrend]{
			Gold:     models.MetalTrend{Direction: models.TrendRising, ChangePercent: 3.16},
			Silver:   models.MetalTrend{Direction: models.TrendFlat, ChangePercent: 0.5},
			Platinum: models.MetalTrend{Direction: models.TrendInsufficientData},
		}},
	}
}

type stubSummarizer struct {
	text string
	err  error
}

func (s stubSummarizer) Name() string { return "stub-model" }

func (s stubSummarizer) Summarize(context.Context, models.NarrativeContext) (string, error) {
	return s.text, s.err
}

func TestParseSectionsChineseHeaders(t *testing.T) {
	text := "前言會被忽略\n" +
		"## 1. 市場分析\n金價偏強\n\n" +
		"## 2. 趨勢預測\n續漲\n" +
		"## 3. 投資建議\n分批\n" +
		"## 4. 風險提示\n匯率\n1. 美元走強\n"

	s := ParseSections(text)
	assert.Equal(t, "## 1. 市場分析\n金價偏強\n", s.MarketAnalysis)
	assert.Equal(t, "## 2. 趨勢預測\n續漲\n", s.TrendPrediction)
	assert.Equal(t, "## 3. 投資建議\n分批\n", s.InvestmentAdvice)
	// numbered items inside a titled section do not switch sections
	assert.Equal(t, "## 4. 風險提示\n匯率\n1. 美元走強\n", s.RiskWarning)
}

func TestParseSectionsEnglishHeaders(t *testing.T) {
	s := ParseSections("Market Analysis\nstrong\nTrend Prediction\nup\nInvestment Advice\nhold\nRisk Warning\nfx")
	assert.Contains(t, s.MarketAnalysis, "strong")
	assert.Contains(t, s.TrendPrediction, "up")
	assert.Contains(t, s.InvestmentAdvice, "hold")
	assert.Contains(t, s.RiskWarning, "fx")
}

func TestParseSectionsOrdinalsOnly(t *testing.T) {
	s := ParseSections("1. 金價 9651.25 偏強\n2. 續漲\n**3.** 分批\n4. 匯率")
	assert.Equal(t, "1. 金價 9651.25 偏強\n", s.MarketAnalysis)
	assert.Equal(t, "2. 續漲\n", s.TrendPrediction)
	assert.Equal(t, "**3.** 分批\n", s.InvestmentAdvice)
	assert.Equal(t, "4. 匯率\n", s.RiskWarning)
}

func TestParseSectionsNoHeaders(t *testing.T) {
	text := "just one paragraph\nwith two lines"
	s := ParseSections(text)
	assert.Equal(t, text, s.MarketAnalysis)
	assert.Empty(t, s.TrendPrediction)
	assert.Empty(t, s.InvestmentAdvice)
	assert.Empty(t, s.RiskWarning)
}

func TestFallbackIsDeterministic(t *testing.T) {
	nc := sampleContext()
	a := Fallback(nc)
	b := Fallback(nc)
	assert.Equal(t, a, b)

	assert.Contains(t, a.MarketAnalysis, "高於")
	assert.Contains(t, a.MarketAnalysis, "偏多")
	assert.Contains(t, a.TrendPrediction, "9500.00 至 9900.00")
	assert.NotContains(t, a.TrendPrediction, metalNames[models.Platinum])
	assert.Contains(t, a.RiskWarning, "正常波動")
	assert.NotEmpty(t, a.InvestmentAdvice)
}

func TestFallbackFlagsHighVolatility(t *testing.T) {
	nc := sampleContext()
	nc.Statistics.PerMetal.Gold.Std = 250
	nc.Trend.PerMetal.Gold.Direction = models.TrendFalling
	nc.Observation.GoldPrice = 9400

	s := Fallback(nc)
	assert.Contains(t, s.RiskWarning, "高波動")
	assert.Contains(t, s.MarketAnalysis, "偏空")
	assert.Contains(t, s.MarketAnalysis, "低於")
}

func TestRequesterWithoutSummarizerUsesTemplate(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC)
	r := NewRequester(applogger.NewNop(), WithClock(func() time.Time { return fixed }))
	assert.False(t, r.Configured())

	s, err := r.Request(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.True(t, s.Fallback)
	assert.Equal(t, FallbackModel, s.SourceModel)
	assert.Equal(t, 0.5, s.Confidence)
	assert.Equal(t, sampleContext().Observation.Timestamp, s.Timestamp)
	assert.NotEmpty(t, s.MarketAnalysis)
}

func TestFallbackRecordIgnoresClock(t *testing.T) {
	early := NewRequester(applogger.NewNop(), WithClock(func() time.Time { return time.Unix(0, 0) }))
	late := NewRequester(applogger.NewNop(), WithClock(time.Now))

	a, err := early.Request(context.Background(), sampleContext())
	require.NoError(t, err)
	b, err := late.Request(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRequesterFallsBackOnSummarizerError(t *testing.T) {
	r := NewRequester(applogger.NewNop(), WithSummarizer(stubSummarizer{err: errors.New("quota exceeded")}))

	s, err := r.Request(context.Background(), sampleContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSummarizerUnavailable)
	assert.True(t, s.Fallback)
	assert.Equal(t, FallbackModel, s.SourceModel)
	assert.NotEmpty(t, s.RiskWarning)
}

func TestRequesterParsesModelOutput(t *testing.T) {
	r := NewRequester(applogger.NewNop(),
		WithSummarizer(stubSummarizer{text: "1. 市場分析\nA\n2. 趨勢預測\nB\n3. 投資建議\nC\n4. 風險提示\nD"}),
		WithConfidence(0.85),
	)

	s, err := r.Request(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.False(t, s.Fallback)
	assert.Equal(t, "stub-model", s.SourceModel)
	assert.Equal(t, 0.85, s.Confidence)
	assert.Equal(t, "1. 市場分析\nA\n", s.MarketAnalysis)
	assert.Equal(t, "4. 風險提示\nD\n", s.RiskWarning)
}

func geminiServer(t *testing.T, handler func(w http.ResponseWriter, body geminiRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var body geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiSummarize(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, body geminiRequest) {
		require.Len(t, body.Contents, 1)
		require.Len(t, body.Contents[0].Parts, 1)
		assert.True(t, strings.Contains(body.Contents[0].Parts[0].Text, "市場分析"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"1. 市場分析\n"},{"text":"偏強"}]}}]}`))
	})

	g, err := NewGeminiSummarizer(GeminiConfig{BaseURL: srv.URL, APIKey: "secret", Model: "gemini-test", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", g.Name())

	text, err := g.Summarize(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "1. 市場分析\n偏強", text)
}

func TestGeminiRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := geminiServer(t, func(w http.ResponseWriter, _ geminiRequest) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	})

	g, err := NewGeminiSummarizer(GeminiConfig{BaseURL: srv.URL, APIKey: "secret", Model: "gemini-test", Attempts: 2})
	require.NoError(t, err)

	text, err := g.Summarize(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := geminiServer(t, func(w http.ResponseWriter, _ geminiRequest) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	g, err := NewGeminiSummarizer(GeminiConfig{BaseURL: srv.URL, APIKey: "secret", Model: "gemini-test", Attempts: 3})
	require.NoError(t, err)

	_, err = g.Summarize(context.Background(), sampleContext())
	require.Error(t, err)
	se, ok := asStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGeminiEmptyCompletion(t *testing.T) {
	srv := geminiServer(t, func(w http.ResponseWriter, _ geminiRequest) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	g, err := NewGeminiSummarizer(GeminiConfig{BaseURL: srv.URL, APIKey: "secret", Model: "gemini-test"})
	require.NoError(t, err)

	_, err = g.Summarize(context.Background(), sampleContext())
	assert.ErrorIs(t, err, errEmptyCompletion)
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiSummarizer(GeminiConfig{})
	assert.ErrorIs(t, err, models.ErrSummarizerUnavailable)
}
