package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/repository"
	"MetalPulse/internal/usecase"
	applogger "MetalPulse/pkg/logger"
)

type stubTrigger struct {
	run     *models.PipelineRun
	err     error
	trigger string
}

func (s *stubTrigger) Trigger(_ context.Context, trigger string) (*models.PipelineRun, error) {
	s.trigger = trigger
	return s.run, s.err
}

func (s *stubTrigger) LastRun() (*models.PipelineRun, bool) { return s.run, s.run != nil }

type stubScheduler bool

func (s stubScheduler) Running() bool { return bool(s) }

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, store *repository.MemoryStore, trig *stubTrigger, opts ...func(*PricesHandler)) (*echo.Echo, *StreamHub) {
	t.Helper()
	logger := applogger.NewNop()
	hub := NewStreamHub(logger, nil)
	t.Cleanup(hub.Close)

	h := NewPricesHandler(logger, usecase.NewQueryService(store), trig, stubScheduler(true), nil, hub)
	for _, o := range opts {
		o(h)
	}
	e := echo.New()
	h.RegisterRoutes(e)
	return e, hub
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func successfulRun() *models.PipelineRun {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.PipelineRun{
		ID:         uuid.New(),
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Success:    true,
		State:      models.StateDone,
		Trigger:    "api:manual",
	}
}

func TestHealthReportsSchedulerAndStore(t *testing.T) {
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{run: successfulRun()})

	rec, env := do(t, e, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var hs models.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &hs))
	assert.Equal(t, "ok", hs.Status)
	assert.True(t, hs.SchedulerRunning)
	assert.Equal(t, "memory", hs.Store)
	assert.True(t, hs.LastRunSuccess)
}

func TestCollectReturnsRun(t *testing.T) {
	trig := &stubTrigger{run: successfulRun()}
	e, _ := newTestServer(t, repository.NewMemoryStore(), trig)

	rec, env := do(t, e, http.MethodPost, "/api/v1/collect", `{"reason":"dashboard"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api:dashboard", trig.trigger)

	var run models.PipelineRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.True(t, run.Success)
	assert.Equal(t, trig.run.ID, run.ID)
}

func TestCollectDefaultsReason(t *testing.T) {
	trig := &stubTrigger{run: successfulRun()}
	e, _ := newTestServer(t, repository.NewMemoryStore(), trig)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/collect", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api:manual", trig.trigger)
}

func TestCollectFailedCycleCarriesStageErrors(t *testing.T) {
	run := successfulRun()
	run.Success = false
	run.State = models.StateAborted
	run.StageErrors = []models.StageError{{Stage: models.StageCollecting, Message: "price source unavailable"}}
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{run: run})

	rec, env := do(t, e, http.MethodPost, "/api/v1/collect", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var got models.PipelineRun
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.Success)
	require.Len(t, got.StageErrors, 1)
	assert.Equal(t, models.StageCollecting, got.StageErrors[0].Stage)
}

func TestCollectBusyIsConflict(t *testing.T) {
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{err: models.ErrCycleBusy})

	rec, _ := do(t, e, http.MethodPost, "/api/v1/collect", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "15", rec.Header().Get("Retry-After"))
}

func TestCollectUnexpectedErrorIsInternal(t *testing.T) {
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{err: errors.New("boom")})

	rec, env := do(t, e, http.MethodPost, "/api/v1/collect", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, string(env.Data), "boom")
}

func TestCollectRateLimited(t *testing.T) {
	trig := &stubTrigger{run: successfulRun()}
	e, _ := newTestServer(t, repository.NewMemoryStore(), trig, func(h *PricesHandler) { h.limiter = denyAll{} })

	rec, _ := do(t, e, http.MethodPost, "/api/v1/collect", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Empty(t, trig.trigger)
}

func TestQueriesOnEmptyStoreAreNotFound(t *testing.T) {
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{})

	for _, target := range []string{
		"/api/v1/latest",
		"/api/v1/prices/current",
		"/api/v1/statistics/monthly",
		"/api/v1/ai-analysis/latest",
	} {
		rec, _ := do(t, e, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestCurrentPricesAndHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now().UTC()
	for i, gold := range []float64{9500, 9700} {
		require.NoError(t, store.SaveObservation(context.Background(), models.Observation{
			Timestamp:   now.Add(time.Duration(i-2) * time.Hour),
			GoldPrice:   gold,
			SilverPrice: 110,
			Source:      "test",
		}))
	}
	e, _ := newTestServer(t, store, &stubTrigger{})

	rec, env := do(t, e, http.MethodGet, "/api/v1/prices/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var o models.Observation
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Equal(t, 9700.0, o.GoldPrice)
	assert.Nil(t, o.PlatinumPrice)

	rec, env = do(t, e, http.MethodGet, "/api/v1/history?days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hs models.HistorySeries
	require.NoError(t, json.Unmarshal(env.Data, &hs))
	assert.Equal(t, 2, hs.Count)
	assert.Equal(t, []float64{9500, 9700}, hs.GoldPrices)
	assert.Len(t, hs.PlatinumPrices, 2)
}

func TestHistoryRejectsOutOfRangeDays(t *testing.T) {
	e, _ := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{})

	rec, _ := do(t, e, http.MethodGet, "/api/v1/history?days=400", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamBroadcastsCycles(t *testing.T) {
	e, hub := newTestServer(t, repository.NewMemoryStore(), &stubTrigger{})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	run := successfulRun()
	hub.OnCycle(context.Background(), run)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type string             `json:"type"`
		Run  models.PipelineRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(msg, &event))
	assert.Equal(t, "cycle", event.Type)
	assert.Equal(t, run.ID, event.Run.ID)
}

func TestStreamRejectsUnknownOrigin(t *testing.T) {
	hub := NewStreamHub(applogger.NewNop(), []string{"https://dashboard.example"})
	defer hub.Close()
	e := echo.New()
	e.GET("/stream", hub.ServeWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Clients())
}
