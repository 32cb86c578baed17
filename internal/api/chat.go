package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/calypso-ai/calypso/internal/chat"
	"github.com/calypso-ai/calypso/internal/gateway"
	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/model"
	"github.com/calypso-ai/calypso/internal/store"
)

// MaxMessageLength bounds the chat message body.
const MaxMessageLength = 32000

// ChatService runs one chat turn.
type ChatService interface {
	Chat(ctx context.Context, sessionID, query string) (*chat.Result, error)
}

// ChatHandler handles POST /api/chat.
type ChatHandler struct {
	service ChatService
	logger  log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(service ChatService, logger log.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatRequest is the POST /api/chat request body.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the POST /api/chat response body.
type ChatResponse struct {
	Answer       string      `json:"answer"`
	UsedChunkIDs []uuid.UUID `json:"used_chunk_ids"`
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message cannot be empty")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "message too long")
		return
	}
	if err := store.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	res, err := h.service.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeChatError(w, req.SessionID, err)
		return
	}

	used := res.UsedChunkIDs
	if used == nil {
		used = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{Answer: res.Answer, UsedChunkIDs: used})
}

// writeChatError maps chat-path failures onto HTTP statuses. Model errors
// keep their three-way classification; everything else is a 500.
func (h *ChatHandler) writeChatError(w http.ResponseWriter, sessionID string, err error) {
	h.logger.Error("chat turn failed", "session_id", sessionID, "error", err)

	var modelErr *model.Error
	if errors.As(err, &modelErr) {
		switch modelErr.Kind {
		case model.KindRateLimited:
			writeError(w, http.StatusTooManyRequests, "rate_limited", "model provider is rate limiting, retry later")
		case model.KindTransient:
			writeError(w, http.StatusServiceUnavailable, "model_unavailable", "model provider unavailable, retry later")
		default:
			writeError(w, http.StatusBadGateway, "model_rejected", "model provider rejected the request")
		}
		return
	}
	if errors.Is(err, gateway.ErrCircuitOpen) {
		writeError(w, http.StatusServiceUnavailable, "model_unavailable", "model provider circuit open, retry later")
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "timeout", "request canceled or timed out")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", "chat failed")
}
