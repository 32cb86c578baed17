package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/model"
)

// scriptedClient returns the queued errors in order, then succeeds.
// It records the start time of every attempt.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls []time.Time
}

func (c *scriptedClient) next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, time.Now())
	if len(c.errs) == 0 {
		return nil
	}
	err := c.errs[0]
	c.errs = c.errs[1:]
	return err
}

func (c *scriptedClient) Embed(context.Context, string) ([]float32, error) {
	if err := c.next(); err != nil {
		return nil, err
	}
	return []float32{1, 0, 0}, nil
}

func (c *scriptedClient) Complete(context.Context, string) (string, error) {
	if err := c.next(); err != nil {
		return "", err
	}
	return "ok", nil
}

func (c *scriptedClient) Dimension() int { return 3 }

func (c *scriptedClient) callTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]time.Time, len(c.calls))
	copy(cp, c.calls)
	return cp
}

func rateLimited() error {
	return &model.Error{Kind: model.KindRateLimited, Op: "complete", Err: errors.New("429")}
}

func transient() error {
	return &model.Error{Kind: model.KindTransient, Op: "complete", Err: errors.New("503")}
}

func fatal() error {
	return &model.Error{Kind: model.KindFatal, Op: "complete", Err: errors.New("bad request")}
}

func testConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts:     4,
			InitialInterval: 10 * time.Millisecond,
			Multiplier:      2.0,
			MaxInterval:     time.Second,
		},
	}
}

func TestRetryRateLimitedThenSuccess(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	g := New(client, testConfig(), log.NewNop())

	got, err := g.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Complete() = %q, want %q", got, "ok")
	}

	calls := client.callTimes()
	if len(calls) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(calls))
	}

	// Backoff delays must be non-decreasing across attempts.
	var prev time.Duration
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		if gap < prev {
			t.Errorf("delay decreased: attempt %d gap %v < previous %v", i, gap, prev)
		}
		prev = gap
	}
}

func TestFatalNotRetried(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{fatal()}}
	g := New(client, testConfig(), log.NewNop())

	_, err := g.Complete(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if model.KindOf(err) != model.KindFatal {
		t.Errorf("kind = %v, want fatal", model.KindOf(err))
	}
	if n := len(client.callTimes()); n != 1 {
		t.Errorf("fatal error should not be retried, got %d attempts", n)
	}
}

func TestExhaustionReturnsLastClassifiedFailure(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{transient(), transient(), transient(), rateLimited()}}
	g := New(client, testConfig(), log.NewNop())

	_, err := g.Complete(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if model.KindOf(err) != model.KindRateLimited {
		t.Errorf("kind = %v, want rate_limited (the last failure)", model.KindOf(err))
	}
	if n := len(client.callTimes()); n != 4 {
		t.Errorf("expected exactly MaxAttempts=4 attempts, got %d", n)
	}
}

func TestEmbedRetries(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{transient()}}
	g := New(client, testConfig(), log.NewNop())

	vec, err := g.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("unexpected vector length %d", len(vec))
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{errs: []error{transient(), transient(), transient(), transient()}}
	cfg := testConfig()
	cfg.Retry.InitialInterval = time.Minute // force a long sleep

	g := New(client, cfg, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Complete(ctx, "hello")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("backoff sleep was not cancelled")
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	}

	client := &scriptedClient{errs: []error{transient(), transient(), transient()}}
	g := New(client, cfg, log.NewNop())

	ctx := context.Background()
	for range 2 {
		if _, err := g.Complete(ctx, "x"); err == nil {
			t.Fatal("expected failure")
		}
	}

	_, err := g.Complete(ctx, "x")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if n := len(client.callTimes()); n != 2 {
		t.Errorf("open breaker should block the provider call, got %d attempts", n)
	}
}
