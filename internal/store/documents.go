package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const documentColumns = `id, session_id, source_name, status, chunk_count, created_at, updated_at`

// CreateDocument records a new document in the pending state.
func (s *Store) CreateDocument(ctx context.Context, sessionID, sourceName string) (*Document, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (session_id, source_name, status)
		VALUES ($1, $2, $3)
		RETURNING `+documentColumns,
		sessionID, sourceName, DocumentPending)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("create document %q: %w", sourceName, err)
	}
	return doc, nil
}

// GetDocument retrieves a document by identifier, scoped to a session.
func (s *Store) GetDocument(ctx context.Context, sessionID string, id uuid.UUID) (*Document, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND session_id = $2`,
		id, sessionID)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// UpdateDocumentStatus moves a document to a new status and records its
// chunk count.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus, chunkCount int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2, chunk_count = $3, updated_at = now() WHERE id = $1`,
		id, status, chunkCount)
	if err != nil {
		return fmt.Errorf("update document %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrDocumentNotFound)
	}
	return nil
}

// InsertChunks writes all chunks for a document in one transaction. The
// document stays pending until the status flips, so partially ingested
// documents never surface in retrieval.
func (s *Store) InsertChunks(ctx context.Context, sessionID string, documentID uuid.UUID, chunks []NewChunk) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		if len(c.Embedding) != VectorDimension {
			return fmt.Errorf("chunk %d embedding dimension %d, want %d",
				c.Index, len(c.Embedding), VectorDimension)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (document_id, session_id, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`,
			documentID, sessionID, c.Index, c.Content, pgvector.NewVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert chunks: %w", err)
	}
	return nil
}

// DeleteChunks removes every chunk belonging to a document.
func (s *Store) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(
		&d.ID,
		&d.SessionID,
		&d.SourceName,
		&d.Status,
		&d.ChunkCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
