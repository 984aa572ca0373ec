package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"MetalPulse/internal/handler/api"
	"MetalPulse/internal/usecase"
	"MetalPulse/pkg/config"
	xhttp "MetalPulse/pkg/http"
	pkgkafka "MetalPulse/pkg/kafka"
	applogger "MetalPulse/pkg/logger"
	"MetalPulse/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	scheduler  *usecase.Scheduler
	httpServer *xhttp.Server
	hub        *api.StreamHub
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
	hub *api.StreamHub,
) *App {
	return &App{
		cfg:        cfg,
		logger:     logger,
		scheduler:  scheduler,
		httpServer: httpServer,
		hub:        hub,
	}
}

// SetTriggerConsumer enables remote triggers over Kafka.
func (a *App) SetTriggerConsumer(consumer *pkgkafka.Consumer, kh pkgkafka.MessageHandler) {
	a.consumer = consumer
	a.kh = kh
}

// SetTriggerQueue enables remote triggers over the Redis collect queue.
func (a *App) SetTriggerQueue(q *queue.RedisQueue) {
	a.queue = q
}

// AddCloser registers infrastructure to close on shutdown, in reverse order.
func (a *App) AddCloser(name string, c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and shuts down when ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		a.consumer.WithConsumerHook(pkgkafka.LoggingHook(a.logger))
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start trigger consumer: %w", err)
		}
		a.logger.Info("trigger consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.queue != nil {
		if err := a.queue.Start(ctx); err != nil {
			return fmt.Errorf("start trigger queue: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("metalpulse started",
		applogger.String("env", a.cfg.Environment),
		applogger.Strings("providers", a.cfg.Source.Providers),
		applogger.String("storage", a.cfg.Storage.Type),
		applogger.Duration("interval_ms", a.cfg.Pipeline.RefreshInterval),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, lets an in-flight cycle finish, then closes
// the infrastructure it writes to.
func (a *App) shutdown() error {
	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("trigger queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.scheduler.Stop(a.cfg.Pipeline.StopTimeout); err != nil {
		a.logger.Warn("scheduler stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.hub != nil {
		a.hub.Close()
	}

	// Flush aggregated logs while the producer is still open.
	a.logger.RemoveCollector()
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Warn("close error", applogger.String("component", nc.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
