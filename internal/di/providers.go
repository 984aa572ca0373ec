package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MetalPulse/internal/domain/models"
	"MetalPulse/internal/domain/repository"
	domsvc "MetalPulse/internal/domain/service"
	"MetalPulse/internal/handler/api"
	internalrepo "MetalPulse/internal/repository"
	"MetalPulse/internal/service/pricesource"
	"MetalPulse/internal/service/ratelimit"
	"MetalPulse/internal/services/analytics"
	"MetalPulse/internal/services/narrative"
	"MetalPulse/internal/usecase"
	"MetalPulse/pkg/cache"
	pkgch "MetalPulse/pkg/clickhouse"
	"MetalPulse/pkg/config"
	xhttp "MetalPulse/pkg/http"
	pkgkafka "MetalPulse/pkg/kafka"
	applogger "MetalPulse/pkg/logger"
	"MetalPulse/pkg/metrics"
	"MetalPulse/pkg/queue"
	"MetalPulse/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
// Aggregated error logs are shipped to the log topic through it.
func ProvideKafkaProducer(cfg *config.Config, logger *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	logger.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.Topics.Logs,
		Publisher:      producer,
	})
	return producer, nil
}

// ProvideKafkaConsumer creates the trigger consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, logger *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.Topics.Triggers == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(logger,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Topics.DLQ),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideTriggerQueue returns the Redis collect queue, or nil when it is not enabled.
func ProvideTriggerQueue(cfg *config.Config, redis *cache.RedisCache, logger *applogger.Logger) *queue.RedisQueue {
	if !cfg.Redis.TriggerQueue || redis == nil {
		return nil
	}
	return queue.NewRedisQueue(logger, queue.QueueConfig{
		Workers:    cfg.Redis.QueueWorkers,
		RetryLimit: 2,
		RetryDelay: 30 * time.Second,
	}, redis.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":collect"))
}

// ProvideStore selects the persistence backend and puts the latest-read cache
// in front of it when Redis is available.
func ProvideStore(cfg *config.Config, logger *applogger.Logger, redis *cache.RedisCache) (repository.Store, error) {
	var store repository.Store
	switch cfg.Storage.Type {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}

		ch := internalrepo.NewClickHouseStore(client, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ch.Init(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		store = ch
	default:
		store = internalrepo.NewMemoryStore()
	}

	if redis != nil {
		store = internalrepo.NewCachedStore(store, redis, cfg.Redis.LatestTTL, logger)
	}
	logger.Info("store ready", applogger.String("store", store.Name()))
	return store, nil
}

// ProvideCycleLock returns the cross-replica lock, or nil when it is not enabled.
func ProvideCycleLock(cfg *config.Config, redis *cache.RedisCache) repository.CycleLock {
	if !cfg.Redis.CycleLock || redis == nil {
		return nil
	}
	return internalrepo.NewCacheCycleLock(redis, cfg.Redis.CycleLockTTL)
}

// ProvidePriceSource builds the configured providers in order. The bank page
// only quotes gold, so it overlays whatever base source is configured.
func ProvidePriceSource(cfg *config.Config, logger *applogger.Logger) (domsvc.PriceSource, error) {
	var (
		bases []domsvc.PriceSource
		bank  pricesource.GoldQuoter
	)
	for _, p := range cfg.Source.Providers {
		switch p {
		case "yahoo":
			bases = append(bases, pricesource.NewYahooSource(pricesource.YahooConfig{
				ChartURL:      cfg.Source.YahooURL,
				FXURL:         cfg.Source.FXURL,
				DefaultFXRate: cfg.Source.DefaultFXRate,
				Platinum:      cfg.Source.Platinum,
				Timeout:       cfg.Source.Timeout,
				PerMinute:     cfg.Source.PerMinute,
			}, logger))
		case "simulated":
			bases = append(bases, pricesource.NewSimulatedSource(pricesource.SimulatedConfig{
				Seed:   cfg.Source.Simulated.Seed,
				Gold:   cfg.Source.Simulated.Gold,
				Silver: cfg.Source.Simulated.Silver,
			}))
		case "taiwanbank":
			bank = pricesource.NewTaiwanBankSource(cfg.Source.TaiwanBankURL, cfg.Source.Timeout, cfg.Source.PerMinute, logger)
		}
	}
	if len(bases) == 0 {
		return nil, fmt.Errorf("price source: no base provider in %v", cfg.Source.Providers)
	}

	var src domsvc.PriceSource = bases[0]
	if len(bases) > 1 {
		src = pricesource.NewFallbackSource(logger, bases...)
	}
	if bank != nil {
		src = pricesource.NewCompositeSource(src, bank, logger)
	}
	logger.Info("price source ready", applogger.String("source", src.Name()))
	return src, nil
}

// ProvideNarrator wires the Gemini summarizer when configured. Without an API
// key every narrative comes from the template.
func ProvideNarrator(cfg *config.Config, logger *applogger.Logger) *narrative.Requester {
	opts := []narrative.Option{
		narrative.WithTimeout(cfg.Narrative.Timeout),
		narrative.WithConfidence(cfg.Narrative.Confidence),
	}
	if cfg.Narrative.Provider == "gemini" {
		g, err := narrative.NewGeminiSummarizer(narrative.GeminiConfig{
			BaseURL:  cfg.Narrative.BaseURL,
			APIKey:   cfg.Narrative.APIKey,
			Model:    cfg.Narrative.Model,
			Timeout:  cfg.Narrative.Timeout,
			Attempts: cfg.Narrative.Attempts,
		})
		if err != nil {
			logger.Warn("narrative summarizer disabled, using template", applogger.Error(err))
		} else {
			opts = append(opts, narrative.WithSummarizer(g))
		}
	}
	return narrative.NewRequester(logger, opts...)
}

func ProvideAnalyzer(cfg *config.Config) *analytics.Engine {
	return analytics.NewEngine(analytics.Config{
		TrendThreshold:    cfg.Analysis.TrendThreshold,
		AnomalyMultiplier: cfg.Analysis.AnomalyMultiplier,
		AnomalyMinPoints:  cfg.Analysis.AnomalyMinPoints,
		Lookback:          cfg.Pipeline.Lookback,
	})
}

func ProvideStreamHub(cfg *config.Config, logger *applogger.Logger) *api.StreamHub {
	return api.NewStreamHub(logger, cfg.Server.AllowedOrigins)
}

// ProvideOrchestrator builds the single cycle runner shared by the scheduler,
// the HTTP trigger and the Kafka trigger.
func ProvideOrchestrator(
	cfg *config.Config,
	logger *applogger.Logger,
	source domsvc.PriceSource,
	store repository.Store,
	engine *analytics.Engine,
	narrator *narrative.Requester,
	recorder *metrics.Recorder,
	lock repository.CycleLock,
	hub *api.StreamHub,
	producer *pkgkafka.Producer,
) *usecase.Orchestrator {
	opts := []usecase.OrchestratorOption{
		usecase.WithMetrics(recorder),
		usecase.WithListeners(hub),
	}
	if lock != nil {
		opts = append(opts, usecase.WithCycleLock(lock))
	}
	if producer != nil {
		opts = append(opts, usecase.WithListeners(internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Events, logger)))
	}

	return usecase.NewOrchestrator(source, store, engine, narrator, usecase.OrchestratorConfig{
		FetchTimeout: cfg.Source.Timeout,
		Bounds: pricesource.Bounds{
			Gold:     cfg.Source.Bounds.Gold,
			Silver:   cfg.Source.Bounds.Silver,
			Platinum: cfg.Source.Bounds.Platinum,
		},
	}, logger, opts...)
}

func ProvideScheduler(cfg *config.Config, orch *usecase.Orchestrator, logger *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(orch, cfg.Pipeline.RefreshInterval, cfg.Pipeline.RunOnStart, logger)
}

func ProvideQueryService(store repository.Store) *usecase.QueryService {
	return usecase.NewQueryService(store)
}

func ProvideTriggerHandler(cfg *config.Config, orch *usecase.Orchestrator, logger *applogger.Logger) *usecase.TriggerHandler {
	return usecase.NewTriggerHandler(cfg.Kafka.Topics.Triggers, orch, logger)
}

func ProvideCollectJob(orch *usecase.Orchestrator, logger *applogger.Logger) *usecase.CollectJob {
	return usecase.NewCollectJob(orch, logger)
}

func ProvidePricesHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	queries *usecase.QueryService,
	orch *usecase.Orchestrator,
	scheduler *usecase.Scheduler,
	hub *api.StreamHub,
) *api.PricesHandler {
	return api.NewPricesHandler(logger, queries, orch, scheduler, ratelimit.NewKeyedLimiter(cfg.Server.CollectPerMinute), hub)
}

// ProvideHTTPServer creates the echo server with the standard middleware stack.
func ProvideHTTPServer(cfg *config.Config, logger *applogger.Logger, prices *api.PricesHandler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetricsPath(cfg.Metrics.Path))
	}
	return xhttp.NewServer(logger, []xhttp.Handler{prices}, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	scheduler *usecase.Scheduler,
	httpServer *xhttp.Server,
	hub *api.StreamHub,
	store repository.Store,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	kh *usecase.TriggerHandler,
	triggerQueue *queue.RedisQueue,
	job *usecase.CollectJob,
) *server.App {
	app := server.New(cfg, logger, scheduler, httpServer, hub)
	if consumer != nil {
		app.SetTriggerConsumer(consumer, kh)
	}
	if triggerQueue != nil {
		triggerQueue.RegisterJob(job)
		app.SetTriggerQueue(triggerQueue)
	}
	// Closed in reverse: the store flushes last.
	app.AddCloser("store", store)
	if producer != nil {
		app.AddCloser("kafka producer", producer)
	}
	return app
}

// Toolkit is the subset of the application the operator CLI drives directly.
type Toolkit struct {
	Logger       *applogger.Logger
	Store        repository.Store
	Orchestrator *usecase.Orchestrator
	Queries      *usecase.QueryService

	cfg          *config.Config
	producer     *pkgkafka.Producer
	triggerQueue *queue.RedisQueue
}

func ProvideToolkit(
	cfg *config.Config,
	logger *applogger.Logger,
	store repository.Store,
	orch *usecase.Orchestrator,
	queries *usecase.QueryService,
	producer *pkgkafka.Producer,
	triggerQueue *queue.RedisQueue,
) *Toolkit {
	return &Toolkit{
		Logger:       logger,
		Store:        store,
		Orchestrator: orch,
		Queries:      queries,
		cfg:          cfg,
		producer:     producer,
		triggerQueue: triggerQueue,
	}
}

// RequestCycle asks the running service for a cycle through the Redis queue
// or the Kafka trigger topic, whichever is configured. It returns the channel used.
func (t *Toolkit) RequestCycle(ctx context.Context, reason string) (string, error) {
	msg := models.TriggerMessage{Reason: reason, RequestedAt: time.Now().UTC()}
	switch {
	case t.triggerQueue != nil:
		if err := t.triggerQueue.Enqueue(ctx, usecase.CollectJobType, msg); err != nil {
			return "", fmt.Errorf("enqueue collect: %w", err)
		}
		return "redis queue", nil
	case t.producer != nil && t.cfg.Kafka.Topics.Triggers != "":
		if err := t.producer.Publish(ctx, t.cfg.Kafka.Topics.Triggers, []byte(reason), msg); err != nil {
			return "", fmt.Errorf("publish trigger: %w", err)
		}
		return "kafka topic " + t.cfg.Kafka.Topics.Triggers, nil
	default:
		return "", errors.New("no remote trigger channel configured (enable redis.trigger_queue or kafka)")
	}
}

// Close releases the store and the producer.
func (t *Toolkit) Close() error {
	t.Logger.RemoveCollector()
	var errs []error
	if t.producer != nil {
		errs = append(errs, t.producer.Close())
	}
	errs = append(errs, t.Store.Close())
	return errors.Join(errs...)
}
