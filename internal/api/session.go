package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// Message listing bounds.
const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 500
)

// SessionStore is the persistence surface the session endpoints need.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error)
}

// SessionHandler handles session inspection endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(st SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: st, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}", h.get)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.messages)
}

// SessionResponse is the GET /api/sessions/{id} response body.
type SessionResponse struct {
	ID             string    `json:"id"`
	RollingSummary string    `json:"rolling_summary"`
	SummaryCursor  int32     `json:"summary_cursor"`
	MessageCount   int32     `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MessageResponse is one element of the messages listing.
type MessageResponse struct {
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int32     `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		ID:             sess.ID,
		RollingSummary: sess.RollingSummary,
		SummaryCursor:  sess.SummaryCursor,
		MessageCount:   sess.MessageCount,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
	})
}

// messages returns the latest messages of a session in ascending sequence
// order. Query parameter limit defaults to DefaultMessageLimit.
func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	limit := parseIntParam(r, "limit", DefaultMessageLimit, 1, MaxMessageLimit)
	msgs, err := h.store.ListRecentMessages(r.Context(), sess.ID, limit)
	if err != nil {
		h.logger.Error("failed to list messages", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list messages")
		return
	}

	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = MessageResponse{
			Role:           string(m.Role),
			Content:        m.Content,
			SequenceNumber: m.SequenceNumber,
			CreatedAt:      m.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"messages":   out,
		"total":      len(out),
	})
}

func (h *SessionHandler) loadSession(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	id := r.PathValue("id")
	if err := store.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", err.Error())
		return nil, false
	}

	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found", "no such session")
			return nil, false
		}
		h.logger.Error("failed to load session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load session")
		return nil, false
	}
	return sess, true
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
