package store

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDocumentNotFound indicates the document does not exist in the
	// caller's session.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidSessionID indicates the supplied session identifier is
	// empty or too long.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrInvalidRole indicates a message role outside user/assistant.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrStaleCursor indicates a summary commit whose cursor would move
	// backwards or past the last existing message. The commit is rejected
	// at the query layer.
	ErrStaleCursor = errors.New("stale summary cursor")
)

// MaxSessionIDLength bounds externally supplied session identifiers.
const MaxSessionIDLength = 256

// ValidateSessionID rejects empty or oversized session identifiers before
// they reach the database.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLength {
		return ErrInvalidSessionID
	}
	return nil
}
