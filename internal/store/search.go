package store

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// NearestChunks returns the limit chunks closest to the query embedding by
// cosine distance, restricted to the session's ready documents. Chunks of
// pending or failed documents are never returned.
func (s *Store) NearestChunks(ctx context.Context, sessionID string, embedding []float32, limit int) ([]ChunkMatch, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("query embedding dimension %d, want %d",
			len(embedding), VectorDimension)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.chunk_index, c.content, d.source_name,
		       1 - (c.embedding <=> $2) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.session_id = $1 AND d.status = $3
		ORDER BY c.embedding <=> $2
		LIMIT $4`,
		sessionID, pgvector.NewVector(embedding), DocumentReady, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest chunks: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Index, &m.Content, &m.SourceName, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk matches: %w", err)
	}
	return matches, nil
}
