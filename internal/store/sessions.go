package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, rolling_summary, summary_cursor, message_count, created_at, updated_at`

// GetSession retrieves a session by its identifier.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("get session %q: %w", id, err)
	}
	return sess, nil
}

// GetOrCreateSession returns the session with the given identifier,
// creating it on first use. Session identifiers are opaque and supplied by
// the caller.
func (s *Store) GetOrCreateSession(ctx context.Context, id string) (*Session, error) {
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}

	// ON CONFLICT DO NOTHING keeps concurrent first-use racers idempotent.
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("create session %q: %w", id, err)
	}

	return s.GetSession(ctx, id)
}

// UpdateSessionSummary atomically writes a new rolling summary and advances
// the summary cursor. The guards enforce the cursor invariants at the query
// layer: it never moves backwards and never passes the highest existing
// sequence number. A rejected commit returns ErrStaleCursor.
func (s *Store) UpdateSessionSummary(ctx context.Context, id, summary string, cursor int32) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET rolling_summary = $2, summary_cursor = $3, updated_at = now()
		WHERE id = $1
		  AND summary_cursor <= $3
		  AND $3 <= (SELECT COALESCE(MAX(sequence_number), 0)
		             FROM messages WHERE session_id = $1)`,
		id, summary, cursor)
	if err != nil {
		return fmt.Errorf("update summary for session %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q cursor %d: %w", id, cursor, ErrStaleCursor)
	}

	s.logger.Debug("summary committed", "session_id", id, "cursor", cursor)
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.RollingSummary,
		&sess.SummaryCursor,
		&sess.MessageCount,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
