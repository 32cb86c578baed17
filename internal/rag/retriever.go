// Package rag retrieves session-scoped document chunks relevant to a query.
package rag

import (
	"context"
	"fmt"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// Retrieval defaults.
const (
	DefaultTopN          = 3
	DefaultMinSimilarity = 0.25
)

// Searcher is the vector search the retriever depends on.
type Searcher interface {
	NearestChunks(ctx context.Context, sessionID string, embedding []float32, limit int) ([]store.ChunkMatch, error)
}

// Embedder turns the query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config tunes retrieval.
type Config struct {
	TopN          int
	MinSimilarity float32
}

// Retriever finds the chunks most similar to a query within one session.
type Retriever struct {
	searcher Searcher
	embedder Embedder
	cfg      Config
	logger   log.Logger
}

// New creates a Retriever. Zero config fields fall back to defaults.
func New(searcher Searcher, embedder Embedder, cfg Config, logger log.Logger) *Retriever {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	return &Retriever{searcher: searcher, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve embeds the query and returns up to TopN chunks from the
// session's ready documents, filtered by the similarity floor. An empty
// result is a normal outcome, not an error: sessions without documents
// simply retrieve nothing.
func (r *Retriever) Retrieve(ctx context.Context, sessionID, query string) ([]store.ChunkMatch, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.searcher.NearestChunks(ctx, sessionID, vec, r.cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Similarity >= r.cfg.MinSimilarity {
			kept = append(kept, m)
		}
	}

	r.logger.Debug("retrieval complete",
		"session_id", sessionID,
		"candidates", len(matches),
		"kept", len(kept))
	return kept, nil
}
