// Package gateway wraps the model capability with the resilience policy
// every calypso component shares: exponential backoff with jitter for
// rate-limited and transient failures, a token-bucket rate limiter applied
// to each attempt, and a circuit breaker guarding a misbehaving provider.
//
// The gateway has no session awareness. Fatal failures are returned
// immediately; after retries are exhausted the last classified failure is
// returned to the caller, never a substituted answer.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/model"
)

// RetryConfig configures the backoff policy.
type RetryConfig struct {
	MaxAttempts     int           // total attempts, including the first
	InitialInterval time.Duration // delay before the second attempt
	Multiplier      float64       // backoff growth factor
	MaxInterval     time.Duration // backoff cap
}

// DefaultRetryConfig returns the defaults used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     10 * time.Second,
	}
}

// Config configures a Gateway.
type Config struct {
	Retry   RetryConfig
	Breaker CircuitBreakerConfig

	// RatePerSecond limits outbound provider calls. Zero disables limiting.
	RatePerSecond float64
	Burst         int
}

// Gateway is the resilient front for a model.Client. Safe for concurrent use.
type Gateway struct {
	client  model.Client
	retry   RetryConfig
	limiter *rate.Limiter
	breaker *CircuitBreaker
	logger  log.Logger
}

// New creates a Gateway wrapping client.
func New(client model.Client, cfg Config, logger log.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Gateway{
		client:  client,
		retry:   cfg.Retry,
		limiter: limiter,
		breaker: NewCircuitBreaker(cfg.Breaker),
		logger:  logger,
	}
}

// Dimension reports the wrapped backend's embedding dimension.
func (g *Gateway) Dimension() int { return g.client.Dimension() }

// Embed embeds text through the retry policy.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.do(ctx, "embed", func(ctx context.Context) error {
		var callErr error
		vec, callErr = g.client.Embed(ctx, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// Complete generates a completion through the retry policy.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	var text string
	err := g.do(ctx, "complete", func(ctx context.Context) error {
		var callErr error
		text, callErr = g.client.Complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// do runs call with exponential backoff. Only rate-limited and transient
// failures are retried; the backoff sleep is the sole blocking point and is
// cancelled with the context.
func (g *Gateway) do(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	delay := g.retry.InitialInterval
	start := time.Now()

	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		if err := g.breaker.Allow(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%s: rate limit wait: %w", op, err)
			}
		}

		err := call(ctx)
		if err == nil {
			g.breaker.Success()
			g.logger.Debug("model call succeeded",
				"op", op, "attempts", attempt, "elapsed", time.Since(start))
			return nil
		}

		lastErr = err
		g.breaker.Failure()

		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}

		if model.KindOf(err) == model.KindFatal {
			return err
		}

		if attempt == g.retry.MaxAttempts {
			break
		}

		wait := delay + jitter(delay)
		g.logger.Debug("retrying model call",
			"op", op, "attempt", attempt, "delay", wait, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during backoff: %w", op, ctx.Err())
		case <-time.After(wait):
		}

		delay = min(time.Duration(float64(delay)*g.retry.Multiplier), g.retry.MaxInterval)
	}

	return fmt.Errorf("%s: %d attempts exhausted (elapsed %v): %w",
		op, g.retry.MaxAttempts, time.Since(start), lastErr)
}

// jitter returns a random duration in [0, d/2]. Additive jitter with a
// growth factor of 2 keeps successive delays non-decreasing: the minimum of
// the next delay is never below the maximum of the previous one.
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)/2 + 1))
}
