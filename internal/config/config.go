package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	SLA         SLAConfig         `mapstructure:"sla"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"`
	Log         LogConfig         `mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// CacheConfig configures the model-response cache.
type CacheConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPassword string `mapstructure:"redis_password"`
	TTLHours      int    `mapstructure:"ttl_hours"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key            string  `mapstructure:"key"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int64   `mapstructure:"max_tokens"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	TimeoutSecs    int     `mapstructure:"timeout_secs"`
}

// PipelineConfig configures extraction behavior.
type PipelineConfig struct {
	MinTextLength      int  `mapstructure:"min_text_length"`
	StreamingThreshold int  `mapstructure:"streaming_threshold"`
	ChunkSize          int  `mapstructure:"chunk_size"`
	ChunkOverlap       int  `mapstructure:"chunk_overlap"`
	ChunkConcurrency   int  `mapstructure:"chunk_concurrency"`
	RedactPII          bool `mapstructure:"redact_pii"`
}

// SLAConfig configures review SLA deadlines derived from confidence.
type SLAConfig struct {
	HighConfidenceThreshold float64 `mapstructure:"high_confidence_threshold"`
	UrgentDays              int     `mapstructure:"urgent_days"`
	DefaultDays             int     `mapstructure:"default_days"`
}

// EligibilityConfig configures the decision engine.
type EligibilityConfig struct {
	EscalationThreshold float64 `mapstructure:"escalation_threshold"`
	EnableReasoning     bool    `mapstructure:"enable_reasoning"`
}

// BatchConfig configures batch processing of document sets.
type BatchConfig struct {
	Concurrency     int  `mapstructure:"concurrency"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// ResilienceConfig configures retry and circuit breaker behavior for the
// model gateway.
type ResilienceConfig struct {
	MaxAttempts      int     `mapstructure:"max_attempts"`
	InitialBackoffMs int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `mapstructure:"max_backoff_ms"`
	Multiplier       float64 `mapstructure:"multiplier"`
	JitterFraction   float64 `mapstructure:"jitter_fraction"`
	FailureThreshold int     `mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `mapstructure:"reset_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RULEFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "ruleforge.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_sec", 2.0)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("pipeline.min_text_length", 50)
	v.SetDefault("pipeline.streaming_threshold", 15000)
	v.SetDefault("pipeline.chunk_size", 12000)
	v.SetDefault("pipeline.chunk_overlap", 500)
	v.SetDefault("pipeline.chunk_concurrency", 3)
	v.SetDefault("pipeline.redact_pii", true)
	v.SetDefault("sla.high_confidence_threshold", 0.8)
	v.SetDefault("sla.urgent_days", 2)
	v.SetDefault("sla.default_days", 5)
	v.SetDefault("eligibility.escalation_threshold", 0.6)
	v.SetDefault("eligibility.enable_reasoning", true)
	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.continue_on_error", true)
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff_ms", 500)
	v.SetDefault("resilience.max_backoff_ms", 30000)
	v.SetDefault("resilience.multiplier", 2.0)
	v.SetDefault("resilience.jitter_fraction", 0.25)
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.reset_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
