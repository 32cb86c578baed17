package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the selected provider's API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the SSL mode is not recognized.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChunking indicates chunk size/overlap are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates top-N or the similarity floor is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidSummary indicates the summarization settings are out of range.
	ErrInvalidSummary = errors.New("invalid summarization configuration")

	// ErrInvalidRetry indicates the gateway retry settings are out of range.
	ErrInvalidRetry = errors.New("invalid retry configuration")
)

// Validate validates configuration values.
// Returns sentinel errors checkable with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOpenAI)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be non-negative and smaller than chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.IngestConcurrency < 1 {
		return fmt.Errorf("%w: ingest_concurrency must be positive, got %d",
			ErrInvalidChunking, c.IngestConcurrency)
	}

	if c.RetrievalTopN < 1 || c.RetrievalTopN > 50 {
		return fmt.Errorf("%w: retrieval_top_n must be between 1 and 50, got %d",
			ErrInvalidRetrieval, c.RetrievalTopN)
	}
	if c.RetrievalMinSimilarity < 0 || c.RetrievalMinSimilarity > 1 {
		return fmt.Errorf("%w: retrieval_min_similarity must be within [0, 1], got %.2f",
			ErrInvalidRetrieval, c.RetrievalMinSimilarity)
	}

	if c.RecencyWindow < 1 {
		return fmt.Errorf("%w: recency_window must be positive, got %d", ErrInvalidRetrieval, c.RecencyWindow)
	}
	if c.TokenBudget < 100 {
		return fmt.Errorf("%w: token_budget must be at least 100, got %d", ErrInvalidRetrieval, c.TokenBudget)
	}

	if c.SummaryThreshold < 1 {
		return fmt.Errorf("%w: summary_threshold must be positive, got %d",
			ErrInvalidSummary, c.SummaryThreshold)
	}
	if c.SummaryQueueSize < 1 {
		return fmt.Errorf("%w: summary_queue_size must be positive, got %d",
			ErrInvalidSummary, c.SummaryQueueSize)
	}
	if c.SummaryMaxWords < 1 {
		return fmt.Errorf("%w: summary_max_words must be positive, got %d",
			ErrInvalidSummary, c.SummaryMaxWords)
	}

	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		return fmt.Errorf("%w: retry_max_attempts must be between 1 and 10, got %d",
			ErrInvalidRetry, c.RetryMaxAttempts)
	}
	if c.RetryInitialInterval <= 0 {
		return fmt.Errorf("%w: retry_initial_interval must be positive, got %v",
			ErrInvalidRetry, c.RetryInitialInterval)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("%w: retry_multiplier must be at least 1, got %v",
			ErrInvalidRetry, c.RetryMultiplier)
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		return fmt.Errorf("%w: retry_max_interval %v must not be below retry_initial_interval %v",
			ErrInvalidRetry, c.RetryMaxInterval, c.RetryInitialInterval)
	}
	if c.RatePerSecond <= 0 {
		return fmt.Errorf("%w: rate_per_second must be positive, got %v",
			ErrInvalidRetry, c.RatePerSecond)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be positive, got %d", ErrInvalidRetry, c.RateBurst)
	}
	if c.BreakerFailures < 1 || c.BreakerSuccesses < 1 || c.BreakerTimeout <= 0 {
		return fmt.Errorf("%w: circuit breaker thresholds must be positive", ErrInvalidRetry)
	}

	return nil
}
