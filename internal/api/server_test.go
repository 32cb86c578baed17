package api

import (
	"context"
	"net/http"

	"github.com/calypso-ai/calypso/internal/chat"
	"github.com/calypso-ai/calypso/internal/log"
	"github.com/calypso-ai/calypso/internal/store"
	"github.com/calypso-ai/calypso/internal/testutil"
)

// Shared fakes for handler tests.

type fakeChatService struct {
	result *chat.Result
	err    error

	lastSessionID string
	lastQuery     string
}

func (f *fakeChatService) Chat(_ context.Context, sessionID, query string) (*chat.Result, error) {
	f.lastSessionID = sessionID
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeIngestService struct {
	doc *store.Document
	err error

	lastSessionID string
	lastFilename  string
	lastData      []byte
}

func (f *fakeIngestService) Ingest(_ context.Context, sessionID, filename string, data []byte) (*store.Document, error) {
	f.lastSessionID = sessionID
	f.lastFilename = filename
	f.lastData = data
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func newTestHandler(chatSvc ChatService, ingest IngestService, sessions SessionStore, pinger Pinger) http.Handler {
	if sessions == nil {
		sessions = testutil.NewMemStore()
	}
	if pinger == nil {
		pinger = &fakePinger{}
	}
	srv := NewServer(chatSvc, ingest, sessions, pinger, log.NewNop())
	return srv.Handler()
}
