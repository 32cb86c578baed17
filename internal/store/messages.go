package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, session_id, role, content, sequence_number, created_at`

// AppendMessage persists a message and assigns it the next sequence number
// for the session. The session row is locked for the duration of the
// transaction so concurrent appends serialize and the sequence stays dense.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, role Role, content string) (*Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	switch role {
	case RoleUser, RoleAssistant:
	default:
		return nil, fmt.Errorf("role %q: %w", role, ErrInvalidRole)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE)`,
		sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lock session %q: %w", sessionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
	}

	var seq int32
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM messages WHERE session_id = $1`,
		sessionID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("next sequence for session %q: %w", sessionID, err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO messages (session_id, role, content, sequence_number)
		VALUES ($1, $2, $3, $4)
		RETURNING `+messageColumns,
		sessionID, role, content, seq)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET message_count = message_count + 1, updated_at = now() WHERE id = $1`,
		sessionID); err != nil {
		return nil, fmt.Errorf("bump message count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return msg, nil
}

// ListMessagesAfter returns all messages with sequence numbers strictly
// greater than after, in ascending order.
func (s *Store) ListMessagesAfter(ctx context.Context, sessionID string, after int32) ([]Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1 AND sequence_number > $2
		ORDER BY sequence_number ASC`,
		sessionID, after)
	if err != nil {
		return nil, fmt.Errorf("list messages after %d: %w", after, err)
	}
	return collectMessages(rows)
}

// ListRecentMessages returns the latest limit messages in ascending
// sequence order.
func (s *Store) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number DESC
		LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// CountMessagesAfter reports how many messages sit beyond the given
// sequence number.
func (s *Store) CountMessagesAfter(ctx context.Context, sessionID string, after int32) (int, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return 0, err
	}

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = $1 AND sequence_number > $2`,
		sessionID, after).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages after %d: %w", after, err)
	}
	return n, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.SessionID,
		&m.Role,
		&m.Content,
		&m.SequenceNumber,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}
