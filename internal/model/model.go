// Package model defines the model-provider capability consumed by the rest
// of calypso: embedding and completion, with every failure classified into
// exactly one of three kinds so the gateway can decide whether to retry.
//
// Two interchangeable backends implement Client, selected at configuration
// time: OpenAI (openai.go) and Gemini (gemini.go).
package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a provider failure.
type Kind int

const (
	// KindRateLimited means the provider signaled quota or rate exhaustion.
	KindRateLimited Kind = iota

	// KindTransient covers network failures and 5xx-class responses.
	KindTransient

	// KindFatal covers invalid requests and unsupported input. Never retried.
	KindFatal
)

// String returns the string representation of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified provider failure. Backends wrap every error they
// return in an *Error so callers can switch on Kind with errors.As.
type Error struct {
	Kind Kind
	Op   string // "embed" or "complete"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. Unclassified errors are
// reported as fatal so callers never retry something they do not understand.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindFatal
}

// Client is the model capability: embed text into a fixed-dimension vector
// and complete a prompt into text. Implementations must be safe for
// concurrent use.
type Client interface {
	// Embed returns the embedding vector for text. The slice length always
	// equals Dimension().
	Embed(ctx context.Context, text string) ([]float32, error)

	// Complete generates a text response for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Dimension is the embedding vector dimension this backend produces.
	Dimension() int
}

// classifyMessage is the fallback classification for SDK errors that do not
// carry a status code. Matched case-insensitively against err.Error().
//
// Provider SDKs wrap transport failures in untyped errors, so substring
// matching is the only signal available here; typed errors are classified
// by the backends before this is consulted.
var (
	rateLimitedPatterns = []string{"rate limit", "quota", "resource_exhausted", "429"}
	transientPatterns   = []string{"500", "502", "503", "504", "unavailable", "connection reset", "timeout", "temporary", "eof"}
)

func classifyMessage(err error) Kind {
	msg := strings.ToLower(err.Error())
	for _, p := range rateLimitedPatterns {
		if strings.Contains(msg, p) {
			return KindRateLimited
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return KindTransient
		}
	}
	return KindFatal
}

// classifyStatus maps an HTTP status code to a failure kind.
func classifyStatus(code int) Kind {
	switch {
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}
