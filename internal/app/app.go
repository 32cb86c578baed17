// Package app wires configuration, storage, the model gateway, and the
// HTTP server into a running service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/calypso-ai/calypso/db"
	"github.com/calypso-ai/calypso/internal/api"
	"github.com/calypso-ai/calypso/internal/chat"
	"github.com/calypso-ai/calypso/internal/config"
	"github.com/calypso-ai/calypso/internal/gateway"
	"github.com/calypso-ai/calypso/internal/ingest"
	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/model"
	"github.com/calypso-ai/calypso/internal/rag"
	"github.com/calypso-ai/calypso/internal/store"
	"github.com/calypso-ai/calypso/internal/summary"
)

// Run loads configuration, builds the object graph, and serves until a
// termination signal arrives.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	st, err := store.New(ctx, cfg.PostgresURL(), logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer st.Close()

	client, err := newModelClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	gw := gateway.New(client, gateway.Config{
		Retry: gateway.RetryConfig{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitialInterval,
			Multiplier:      cfg.RetryMultiplier,
			MaxInterval:     cfg.RetryMaxInterval,
		},
		Breaker: gateway.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailures,
			SuccessThreshold: cfg.BreakerSuccesses,
			Timeout:          cfg.BreakerTimeout,
		},
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.RateBurst,
	}, logger.With("component", "gateway"))

	pipeline, err := ingest.New(st, gw, ingest.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Concurrency:  cfg.IngestConcurrency,
	}, logger.With("component", "ingest"))
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	retriever := rag.New(st, gw, rag.Config{
		TopN:          cfg.RetrievalTopN,
		MinSimilarity: cfg.RetrievalMinSimilarity,
	}, logger.With("component", "rag"))

	worker := summary.NewWorker(st, gw, summary.Config{
		QueueSize:       cfg.SummaryQueueSize,
		MaxSummaryWords: cfg.SummaryMaxWords,
	}, logger.With("component", "summary"))

	engine := chat.New(st, retriever, gw, worker, chat.Config{
		RecencyWindow:    cfg.RecencyWindow,
		SummaryThreshold: cfg.SummaryThreshold,
		TokenBudget:      cfg.TokenBudget,
	}, logger.With("component", "chat"))

	server := api.NewServer(engine, pipeline, st, st, logger.With("component", "api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return server.Run(gctx, cfg.ListenAddr)
	})

	return g.Wait()
}

// newModelClient builds the configured provider backend. API keys come
// from the environment, validated earlier by config.Load.
func newModelClient(ctx context.Context, cfg *config.Config) (model.Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return model.NewOpenAI(model.OpenAIConfig{
			APIKey:        os.Getenv("OPENAI_API_KEY"),
			Model:         cfg.ModelName,
			EmbedderModel: cfg.EmbedderModel,
			Temperature:   cfg.Temperature,
		})
	case config.ProviderGemini:
		return model.NewGemini(ctx, model.GeminiConfig{
			APIKey:        os.Getenv("GEMINI_API_KEY"),
			Model:         cfg.ModelName,
			EmbedderModel: cfg.EmbedderModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
