// Package store provides PostgreSQL persistence for sessions, messages,
// documents and their embedded chunks, including session-scoped vector
// similarity search via pgvector.
//
// Every query is filtered by session identifier at the SQL layer; no
// cross-session rows can leak into a caller's results. Store is safe for
// concurrent use by multiple goroutines.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/calypso-ai/calypso/internal/log"
)

// VectorDimension is the embedding dimension of the document_chunks schema.
// Both model backends are configured to produce vectors of this size; the
// ingest pipeline and retriever validate it before touching the database.
const VectorDimension = 768

// Store manages calypso persistence on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New connects to PostgreSQL, registers pgvector types on every connection
// and verifies the database is reachable.
func New(ctx context.Context, connURL string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Ping verifies database connectivity (used by the readiness probe).
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
