package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		// Trigger endpoint budget per client IP.
		CollectPerMinute int `yaml:"collect_per_minute"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		Output     string `yaml:"output"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Pipeline struct {
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		Lookback        time.Duration `yaml:"lookback"`
		RunOnStart      bool          `yaml:"run_on_start"`
		StopTimeout     time.Duration `yaml:"stop_timeout"`
	} `yaml:"pipeline"`
	Analysis struct {
		TrendThreshold    float64 `yaml:"trend_threshold"`
		AnomalyMultiplier float64 `yaml:"anomaly_multiplier"`
		AnomalyMinPoints  int     `yaml:"anomaly_min_points"`
	} `yaml:"analysis"`
	Source struct {
		Providers     []string      `yaml:"providers"` // yahoo, taiwanbank, simulated
		Timeout       time.Duration `yaml:"timeout"`
		PerMinute     int           `yaml:"per_minute"`
		DefaultFXRate float64       `yaml:"default_fx_rate"`
		FXURL         string        `yaml:"fx_url"`
		YahooURL      string        `yaml:"yahoo_url"`
		TaiwanBankURL string        `yaml:"taiwan_bank_url"`
		Platinum      bool          `yaml:"platinum"`
		Bounds        struct {
			Gold     Range `yaml:"gold"`
			Silver   Range `yaml:"silver"`
			Platinum Range `yaml:"platinum"`
		} `yaml:"bounds"`
		Simulated struct {
			Seed   int64   `yaml:"seed"`
			Gold   float64 `yaml:"gold"`
			Silver float64 `yaml:"silver"`
		} `yaml:"simulated"`
	} `yaml:"source"`
	Narrative struct {
		Provider   string        `yaml:"provider"` // gemini or template
		APIKey     string        `yaml:"api_key"`
		Model      string        `yaml:"model"`
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		Attempts   int           `yaml:"attempts"`
		Confidence float64       `yaml:"confidence"`
	} `yaml:"narrative"`
	Storage struct {
		Type string `yaml:"type"` // memory or clickhouse
	} `yaml:"storage"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Host      string        `yaml:"host"`
		Port      int           `yaml:"port"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		PoolSize  int           `yaml:"pool_size"`
		Prefix    string        `yaml:"prefix"`
		LatestTTL time.Duration `yaml:"latest_ttl"`
		// Cross-replica cycle lock; only meaningful when several instances share a store.
		CycleLock    bool          `yaml:"cycle_lock"`
		CycleLockTTL time.Duration `yaml:"cycle_lock_ttl"`
		// Remote collect requests through a Redis list, for deployments without Kafka.
		TriggerQueue bool `yaml:"trigger_queue"`
		QueueWorkers int  `yaml:"queue_workers"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Topics       struct {
			Events   string `yaml:"events"`
			Triggers string `yaml:"triggers"`
			Logs     string `yaml:"logs"`
			DLQ      string `yaml:"dlq"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// Range is an inclusive sanity band for a metal price.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies inside the band. A zero band accepts everything.
func (r Range) Contains(v float64) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return v >= r.Min && v <= r.Max
}

// envOverrides lists the settings operators commonly flip per deployment.
type envOverrides struct {
	Environment     string        `envconfig:"ENVIRONMENT"`
	Port            int           `envconfig:"PORT"`
	LogLevel        string        `envconfig:"LOG_LEVEL"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS"`
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL"`
	PriceAPITimeout time.Duration `envconfig:"PRICE_API_TIMEOUT"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel     string        `envconfig:"GEMINI_MODEL"`
	StorageType     string        `envconfig:"STORAGE"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS"`
	RedisHost       string        `envconfig:"REDIS_HOST"`
	ClickHouseHost  string        `envconfig:"CLICKHOUSE_HOST"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with METALPULSE_* environment variables.
// A .env file in the working directory is honoured when present.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := c.applyEnv("METALPULSE"); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(prefix string) error {
	var env envOverrides
	if err := envconfig.Process(prefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}

	if env.Environment != "" {
		c.Environment = env.Environment
	}
	if env.Port > 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Log.Level = strings.ToLower(env.LogLevel)
	}
	if len(env.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = env.AllowedOrigins
	}
	if env.RefreshInterval > 0 {
		c.Pipeline.RefreshInterval = env.RefreshInterval
	}
	if env.PriceAPITimeout > 0 {
		c.Source.Timeout = env.PriceAPITimeout
	}
	if env.GeminiAPIKey != "" {
		c.Narrative.APIKey = env.GeminiAPIKey
		if c.Narrative.Provider == "" || c.Narrative.Provider == "template" {
			c.Narrative.Provider = "gemini"
		}
	}
	if env.GeminiModel != "" {
		c.Narrative.Model = env.GeminiModel
	}
	if env.StorageType != "" {
		c.Storage.Type = env.StorageType
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
		c.Kafka.Enabled = true
	}
	if env.RedisHost != "" {
		c.Redis.Host = env.RedisHost
		c.Redis.Enabled = true
	}
	if env.ClickHouseHost != "" {
		c.ClickHouse.Host = env.ClickHouseHost
	}
	return nil
}

// ApplyDefaults fills every zero value that has a sensible production default.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// triggers run a full cycle synchronously
		c.Server.WriteTimeout = 90 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Server.CollectPerMinute == 0 {
		c.Server.CollectPerMinute = 6
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Pipeline.RefreshInterval == 0 {
		c.Pipeline.RefreshInterval = 120 * time.Second
	}
	if c.Pipeline.Lookback == 0 {
		c.Pipeline.Lookback = 30 * 24 * time.Hour
	}
	if c.Pipeline.StopTimeout == 0 {
		c.Pipeline.StopTimeout = 2 * time.Minute
	}
	if c.Analysis.TrendThreshold == 0 {
		c.Analysis.TrendThreshold = 2.0
	}
	if c.Analysis.AnomalyMultiplier == 0 {
		c.Analysis.AnomalyMultiplier = 3.0
	}
	if c.Analysis.AnomalyMinPoints == 0 {
		c.Analysis.AnomalyMinPoints = 10
	}
	if len(c.Source.Providers) == 0 {
		c.Source.Providers = []string{"yahoo"}
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 30 * time.Second
	}
	if c.Source.PerMinute == 0 {
		c.Source.PerMinute = 30
	}
	if c.Source.DefaultFXRate == 0 {
		c.Source.DefaultFXRate = 32.0
	}
	if c.Source.FXURL == "" {
		c.Source.FXURL = "https://api.exchangerate-api.com/v4/latest/USD"
	}
	if c.Source.YahooURL == "" {
		c.Source.YahooURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if c.Source.TaiwanBankURL == "" {
		c.Source.TaiwanBankURL = "https://rate.bot.com.tw/gold?Lang=zh-TW"
	}
	if c.Source.Bounds.Gold == (Range{}) {
		c.Source.Bounds.Gold = Range{Min: 5000, Max: 15000}
	}
	if c.Source.Bounds.Silver == (Range{}) {
		c.Source.Bounds.Silver = Range{Min: 50, Max: 300}
	}
	if c.Source.Bounds.Platinum == (Range{}) {
		c.Source.Bounds.Platinum = Range{Min: 500, Max: 5000}
	}
	if c.Source.Simulated.Gold == 0 {
		c.Source.Simulated.Gold = 9500
	}
	if c.Source.Simulated.Silver == 0 {
		c.Source.Simulated.Silver = 115
	}
	if c.Narrative.Provider == "" {
		c.Narrative.Provider = "template"
	}
	if c.Narrative.Model == "" {
		c.Narrative.Model = "gemini-2.5-flash"
	}
	if c.Narrative.BaseURL == "" {
		c.Narrative.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Narrative.Timeout == 0 {
		c.Narrative.Timeout = 30 * time.Second
	}
	if c.Narrative.Attempts == 0 {
		c.Narrative.Attempts = 2
	}
	if c.Narrative.Confidence == 0 {
		c.Narrative.Confidence = 0.85
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.ClickHouse.Port == 0 {
		c.ClickHouse.Port = 9000
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "metalpulse"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "metalpulse"
	}
	if c.Redis.LatestTTL == 0 {
		c.Redis.LatestTTL = 10 * time.Minute
	}
	if c.Redis.CycleLockTTL == 0 {
		c.Redis.CycleLockTTL = 5 * time.Minute
	}
	if c.Redis.QueueWorkers == 0 {
		c.Redis.QueueWorkers = 1
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "gzip"
	}
	if c.Kafka.RequiredAcks == 0 {
		c.Kafka.RequiredAcks = -1
	}
	if c.Kafka.Topics.Events == "" {
		c.Kafka.Topics.Events = "metalpulse.cycles"
	}
	if c.Kafka.Topics.Triggers == "" {
		c.Kafka.Topics.Triggers = "metalpulse.collect"
	}
	if c.Kafka.Topics.Logs == "" {
		c.Kafka.Topics.Logs = "metalpulse.logs"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "metalpulse"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Pipeline.RefreshInterval < time.Second {
		return fmt.Errorf("pipeline.refresh_interval must be at least 1s, got %s", c.Pipeline.RefreshInterval)
	}
	if c.Pipeline.Lookback <= 0 {
		return fmt.Errorf("pipeline.lookback must be positive")
	}
	if c.Analysis.TrendThreshold < 0 {
		return fmt.Errorf("analysis.trend_threshold cannot be negative")
	}
	if c.Analysis.AnomalyMultiplier <= 0 {
		return fmt.Errorf("analysis.anomaly_multiplier must be positive")
	}
	if c.Analysis.AnomalyMinPoints < 2 {
		return fmt.Errorf("analysis.anomaly_min_points must be at least 2")
	}
	for _, p := range c.Source.Providers {
		switch p {
		case "yahoo", "taiwanbank", "simulated":
		default:
			return fmt.Errorf("source.providers: unknown provider '%s'", p)
		}
	}
	if len(c.Source.Providers) == 1 && c.Source.Providers[0] == "taiwanbank" {
		return fmt.Errorf("source.providers: taiwanbank quotes gold only and needs a base provider")
	}
	if c.Narrative.Provider != "gemini" && c.Narrative.Provider != "template" {
		return fmt.Errorf("narrative.provider must be 'gemini' or 'template', got '%s'", c.Narrative.Provider)
	}
	if c.Narrative.Confidence < 0 || c.Narrative.Confidence > 1 {
		return fmt.Errorf("narrative.confidence must be within [0,1]")
	}
	if c.Storage.Type != "memory" && c.Storage.Type != "clickhouse" {
		return fmt.Errorf("storage.type must be 'memory' or 'clickhouse', got '%s'", c.Storage.Type)
	}
	if c.Storage.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required for clickhouse storage")
	}
	if c.Redis.CycleLock && !c.Redis.Enabled {
		return fmt.Errorf("redis.cycle_lock requires redis.enabled")
	}
	if c.Redis.TriggerQueue && !c.Redis.Enabled {
		return fmt.Errorf("redis.trigger_queue requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
