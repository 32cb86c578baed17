// Package api provides the HTTP REST surface.
//
// Endpoints:
//
//	POST /api/chat               one chat turn for a session
//	POST /api/documents          multipart document upload + ingestion
//	GET  /api/sessions/{id}      session state (summary, cursor, counts)
//	GET  /api/sessions/{id}/messages  recent messages
//	GET  /health                 liveness probe
//	GET  /ready                  readiness probe (pings the database)
//
// File structure follows the handlers it names: server.go holds setup and
// lifecycle, middleware.go the logging/recovery chain, response.go the JSON
// helpers, and one file per endpoint group.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/calypso-ai/calypso/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop slowloris clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Chat
	// turns can sit behind gateway backoff, so this stays generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout applies to keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	chat      *ChatHandler
	documents *DocumentHandler
	sessions  *SessionHandler
	health    *HealthHandler
}

// NewServer creates a server with all routes registered.
func NewServer(chatSvc ChatService, ingest IngestService, sessions SessionStore, pinger Pinger, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		chat:      NewChatHandler(chatSvc, logger),
		documents: NewDocumentHandler(ingest, logger),
		sessions:  NewSessionHandler(sessions, logger),
		health:    NewHealthHandler(pinger, logger),
	}

	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.health.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery -> logging -> handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is canceled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
