package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/usecase"
	xhttp "MetalPulse/pkg/http"
	"MetalPulse/pkg/http/middleware"
	applogger "MetalPulse/pkg/logger"
)

// busyRetryAfter is advertised on 409 while another replica holds the cycle lock.
const busyRetryAfter = 15 * time.Second

// CycleTrigger runs (or joins) a pipeline cycle on demand.
type CycleTrigger interface {
	Trigger(ctx context.Context, trigger string) (*models.PipelineRun, error)
	LastRun() (*models.PipelineRun, bool)
}

type SchedulerStatus interface {
	Running() bool
}

// PricesHandler serves the /api/v1 query and trigger surface.
type PricesHandler struct {
	logger    *applogger.Logger
	queries   *usecase.QueryService
	trigger   CycleTrigger
	scheduler SchedulerStatus
	limiter   middleware.KeyedAllower
	hub       *StreamHub
}

func NewPricesHandler(
	logger *applogger.Logger,
	queries *usecase.QueryService,
	trigger CycleTrigger,
	scheduler SchedulerStatus,
	limiter middleware.KeyedAllower,
	hub *StreamHub,
) *PricesHandler {
	return &PricesHandler{
		logger:    logger,
		queries:   queries,
		trigger:   trigger,
		scheduler: scheduler,
		limiter:   limiter,
		hub:       hub,
	}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/health", h.Health)
	g.POST("/collect", h.Collect, middleware.RateLimit(h.limiter))
	g.GET("/latest", h.Latest)
	g.GET("/history", h.History)
	g.GET("/prices/current", h.CurrentPrices)
	g.GET("/statistics/monthly", h.MonthlyStatistics)
	g.GET("/ai-analysis/latest", h.LatestNarrative)
	if h.hub != nil {
		g.GET("/stream", h.hub.ServeWS)
	}
}

func (h *PricesHandler) Health(c echo.Context) error {
	status := models.HealthStatus{Status: "ok"}
	if h.scheduler != nil {
		status.SchedulerRunning = h.scheduler.Running()
	}
	if run, ok := h.trigger.LastRun(); ok {
		status.LastRunAt = run.FinishedAt
		status.LastRunSuccess = run.Success
	}

	name, err := h.queries.StoreHealth(c.Request().Context())
	status.Store = name
	if err != nil {
		h.logger.Warn("store health check failed", applogger.String("store", name), applogger.Error(err))
		status.Status = "degraded"
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

// Collect runs a cycle and returns its PipelineRun. A collection failure is
// reported as 502 with the run so callers can read stage_errors.
func (h *PricesHandler) Collect(c echo.Context) error {
	req := &models.CollectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	run, err := h.trigger.Trigger(c.Request().Context(), "api:"+req.Reason)
	switch {
	case errors.Is(err, models.ErrCycleBusy):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a collection cycle is already running").WithRetryAfter(busyRetryAfter))
	case err != nil:
		h.logger.Error("collect trigger failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("collection cycle failed").WithError(err))
	case !run.Success:
		return xhttp.DataResponse(c, http.StatusBadGateway, run)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *PricesHandler) Latest(c echo.Context) error {
	v, err := h.queries.Latest(c.Request().Context())
	if err != nil {
		return h.queryError(c, "latest", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *PricesHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	series, err := h.queries.History(c.Request().Context(), req.Days)
	if err != nil {
		return h.queryError(c, "history", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=30")
	return xhttp.SuccessResponse(c, series)
}

func (h *PricesHandler) CurrentPrices(c echo.Context) error {
	o, err := h.queries.CurrentPrices(c.Request().Context())
	if err != nil {
		return h.queryError(c, "current prices", err)
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *PricesHandler) MonthlyStatistics(c echo.Context) error {
	s, err := h.queries.MonthlyStatistics(c.Request().Context())
	if err != nil {
		return h.queryError(c, "monthly statistics", err)
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *PricesHandler) LatestNarrative(c echo.Context) error {
	n, err := h.queries.LatestNarrative(c.Request().Context())
	if err != nil {
		return h.queryError(c, "narrative", err)
	}
	return xhttp.SuccessResponse(c, n)
}

func (h *PricesHandler) queryError(c echo.Context, what string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no "+what+" data yet"))
	}
	h.logger.Error(what+" query failed", applogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError(what+" query failed").WithError(err))
}
