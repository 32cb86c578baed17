// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.calypso/config.yaml or ./config.yaml)
//  3. Default values
//
// Validation uses sentinel errors so callers can check failures with
// errors.Is(). Sensitive values (database password, API keys) are read from
// the environment and never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config stores application configuration.
type Config struct {
	// Model provider configuration
	Provider      string  `mapstructure:"provider"`       // "gemini" (default) or "openai"
	ModelName     string  `mapstructure:"model_name"`     // chat model identifier
	EmbedderModel string  `mapstructure:"embedder_model"` // embedding model identifier
	Temperature   float32 `mapstructure:"temperature"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Ingestion
	ChunkSize         int `mapstructure:"chunk_size"`
	ChunkOverlap      int `mapstructure:"chunk_overlap"`
	IngestConcurrency int `mapstructure:"ingest_concurrency"`

	// Retrieval
	RetrievalTopN          int     `mapstructure:"retrieval_top_n"`
	RetrievalMinSimilarity float32 `mapstructure:"retrieval_min_similarity"`

	// Chat
	RecencyWindow int `mapstructure:"recency_window"`
	TokenBudget   int `mapstructure:"token_budget"`

	// Summarization
	SummaryThreshold int `mapstructure:"summary_threshold"`
	SummaryQueueSize int `mapstructure:"summary_queue_size"`
	SummaryMaxWords  int `mapstructure:"summary_max_words"`

	// Gateway resilience
	RetryMaxAttempts     int           `mapstructure:"retry_max_attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMultiplier      float64       `mapstructure:"retry_multiplier"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	RatePerSecond        float64       `mapstructure:"rate_per_second"`
	RateBurst            int           `mapstructure:"rate_burst"`
	BreakerFailures      int           `mapstructure:"breaker_failures"`
	BreakerSuccesses     int           `mapstructure:"breaker_successes"`
	BreakerTimeout       time.Duration `mapstructure:"breaker_timeout"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".calypso"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Model defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("temperature", 0.7)

	// Server defaults
	v.SetDefault("listen_addr", ":8080")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// PostgreSQL defaults for local development
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "calypso")
	v.SetDefault("postgres_password", "calypso_dev_password")
	v.SetDefault("postgres_db_name", "calypso")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Ingestion defaults
	v.SetDefault("chunk_size", 800)
	v.SetDefault("chunk_overlap", 100)
	v.SetDefault("ingest_concurrency", 4)

	// Retrieval defaults
	v.SetDefault("retrieval_top_n", 3)
	v.SetDefault("retrieval_min_similarity", 0.25)

	// Chat defaults
	v.SetDefault("recency_window", 6)
	v.SetDefault("token_budget", 8000)

	// Summarization defaults
	v.SetDefault("summary_threshold", 10)
	v.SetDefault("summary_queue_size", 64)
	v.SetDefault("summary_max_words", 200)

	// Gateway defaults
	v.SetDefault("retry_max_attempts", 4)
	v.SetDefault("retry_initial_interval", 500*time.Millisecond)
	v.SetDefault("retry_multiplier", 2.0)
	v.SetDefault("retry_max_interval", 10*time.Second)
	v.SetDefault("rate_per_second", 5.0)
	v.SetDefault("rate_burst", 5)
	v.SetDefault("breaker_failures", 5)
	v.SetDefault("breaker_successes", 2)
	v.SetDefault("breaker_timeout", 30*time.Second)
}

// bindEnvVariables binds environment overrides explicitly. API keys
// (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the model backends
// and only checked for presence in Validate.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "CALYPSO_PROVIDER")
	mustBind("model_name", "CALYPSO_MODEL_NAME")
	mustBind("embedder_model", "CALYPSO_EMBEDDER_MODEL")
	mustBind("listen_addr", "CALYPSO_LISTEN_ADDR")
	mustBind("log_level", "CALYPSO_LOG_LEVEL")
	mustBind("log_json", "CALYPSO_LOG_JSON")
}
