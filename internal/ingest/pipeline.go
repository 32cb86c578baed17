// Package ingest runs the document ingestion pipeline: extract, chunk,
// embed, persist.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calypso-ai/calypso/internal/extract"
	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// Store is the subset of persistence the pipeline needs.
type Store interface {
	CreateDocument(ctx context.Context, sessionID, sourceName string) (*store.Document, error)
	InsertChunks(ctx context.Context, sessionID string, documentID uuid.UUID, chunks []store.NewChunk) error
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status store.DocumentStatus, chunkCount int) error
	DeleteChunks(ctx context.Context, documentID uuid.UUID) error
}

// Embedder produces embedding vectors for chunk content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config tunes the pipeline.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
	Concurrency  int // parallel embedding calls per document
}

// Pipeline ingests uploaded documents for a session.
type Pipeline struct {
	store    Store
	embedder Embedder
	cfg      Config
	logger   log.Logger
}

// New creates a Pipeline. Zero config fields fall back to defaults.
func New(st Store, embedder Embedder, cfg Config, logger log.Logger) (*Pipeline, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ChunkSize <= cfg.ChunkOverlap {
		return nil, fmt.Errorf("chunk size %d must exceed overlap %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}

	return &Pipeline{store: st, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// Ingest extracts, chunks, embeds, and persists one uploaded file for a
// session. Extraction failures return before any document row exists.
// Failures past that point mark the document failed and leave none of its
// chunks visible to retrieval.
func (p *Pipeline) Ingest(ctx context.Context, sessionID, filename string, data []byte) (*store.Document, error) {
	text, err := extract.Text(filename, data)
	if err != nil {
		return nil, err
	}

	doc, err := p.store.CreateDocument(ctx, sessionID, filename)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	chunks, err := p.embedChunks(ctx, Chunk(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap))
	if err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, fmt.Errorf("embed document %q: %w", filename, err)
	}

	if err := p.store.InsertChunks(ctx, sessionID, doc.ID, chunks); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, fmt.Errorf("persist chunks for %q: %w", filename, err)
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, store.DocumentReady, len(chunks)); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, fmt.Errorf("mark document %q ready: %w", filename, err)
	}

	p.logger.Info("document ingested",
		"session_id", sessionID,
		"document_id", doc.ID,
		"source", filename,
		"chunks", len(chunks))

	doc.Status = store.DocumentReady
	doc.ChunkCount = int32(len(chunks))
	return doc, nil
}

// embedChunks embeds each chunk concurrently, preserving chunk order.
func (p *Pipeline) embedChunks(ctx context.Context, pieces []string) ([]store.NewChunk, error) {
	chunks := make([]store.NewChunk, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, piece := range pieces {
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, piece)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(vec) != store.VectorDimension {
				return fmt.Errorf("chunk %d: embedding dimension %d, want %d",
					i, len(vec), store.VectorDimension)
			}
			chunks[i] = store.NewChunk{Index: int32(i), Content: piece, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// fail marks the document failed and clears any persisted chunks. The
// status write uses a detached context so cancellation of the request does
// not strand the document in pending.
func (p *Pipeline) fail(ctx context.Context, docID uuid.UUID, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := p.store.DeleteChunks(ctx, docID); err != nil {
		p.logger.Warn("failed to clear chunks of failed document", "document_id", docID, "error", err)
	}
	if err := p.store.UpdateDocumentStatus(ctx, docID, store.DocumentFailed, 0); err != nil {
		p.logger.Warn("failed to mark document failed", "document_id", docID, "error", err)
	}
	p.logger.Error("document ingestion failed", "document_id", docID, "error", cause)
}
