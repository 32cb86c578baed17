package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/calypso-ai/calypso/internal/extract"
	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
)

// MaxUploadSize bounds document uploads.
const MaxUploadSize = 10 << 20 // 10 MiB

// IngestService runs the document ingestion pipeline.
type IngestService interface {
	Ingest(ctx context.Context, sessionID, filename string, data []byte) (*store.Document, error)
}

// DocumentHandler handles POST /api/documents.
type DocumentHandler struct {
	ingest IngestService
	logger log.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(ingest IngestService, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.upload)
}

// DocumentResponse is the POST /api/documents response body.
type DocumentResponse struct {
	DocumentID string `json:"document_id"`
	SourceName string `json:"source_name"`
	Status     string `json:"status"`
	ChunkCount int32  `json:"chunk_count"`
}

// upload accepts a multipart form with a session_id field and a file part
// named "file". An unsupported file type is rejected with 415 before any
// document row exists.
func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed multipart form or upload too large")
		return
	}

	sessionID := r.FormValue("session_id")
	if err := store.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read upload")
		return
	}

	doc, err := h.ingest.Ingest(r.Context(), sessionID, header.Filename, data)
	if err != nil {
		h.writeIngestError(w, sessionID, header.Filename, err)
		return
	}

	writeJSON(w, http.StatusCreated, DocumentResponse{
		DocumentID: doc.ID.String(),
		SourceName: doc.SourceName,
		Status:     string(doc.Status),
		ChunkCount: doc.ChunkCount,
	})
}

func (h *DocumentHandler) writeIngestError(w http.ResponseWriter, sessionID, filename string, err error) {
	h.logger.Error("document ingestion failed",
		"session_id", sessionID,
		"source", filename,
		"error", err)

	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, extract.ErrExtractionFailed), errors.Is(err, extract.ErrEmptyDocument):
		writeError(w, http.StatusUnprocessableEntity, "extraction_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "ingestion_failed", "document could not be ingested")
	}
}
