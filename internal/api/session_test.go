package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calypso-ai/calypso/internal/store"
	"github.com/calypso-ai/calypso/internal/testutil"
)

func getPath(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestSessionGet(t *testing.T) {
	ms := testutil.NewMemStore()
	ctx := context.Background()
	_, err := ms.GetOrCreateSession(ctx, "sess-1")
	require.NoError(t, err)
	_, err = ms.AppendMessage(ctx, "sess-1", store.RoleUser, "hello")
	require.NoError(t, err)
	require.NoError(t, ms.UpdateSessionSummary(ctx, "sess-1", "greeted", 1))

	handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, ms, nil)
	w := getPath(t, handler, "/api/sessions/sess-1")

	require.Equal(t, http.StatusOK, w.Code)
	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.ID)
	assert.Equal(t, "greeted", resp.RollingSummary)
	assert.Equal(t, int32(1), resp.SummaryCursor)
	assert.Equal(t, int32(1), resp.MessageCount)
}

func TestSessionGetNotFound(t *testing.T) {
	handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, testutil.NewMemStore(), nil)
	w := getPath(t, handler, "/api/sessions/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionMessages(t *testing.T) {
	ms := testutil.NewMemStore()
	ctx := context.Background()
	_, err := ms.GetOrCreateSession(ctx, "sess-1")
	require.NoError(t, err)
	for i := range 5 {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		_, err = ms.AppendMessage(ctx, "sess-1", role, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, ms, nil)
	w := getPath(t, handler, "/api/sessions/sess-1/messages?limit=3")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		SessionID string            `json:"session_id"`
		Messages  []MessageResponse `json:"messages"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Total)
	require.Len(t, resp.Messages, 3)
	// Latest three, ascending.
	assert.Equal(t, "message 2", resp.Messages[0].Content)
	assert.Equal(t, "message 4", resp.Messages[2].Content)
	assert.Equal(t, int32(5), resp.Messages[2].SequenceNumber)
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "default", query: "", want: 50},
		{name: "explicit", query: "limit=10", want: 10},
		{name: "clamped high", query: "limit=9999", want: 500},
		{name: "clamped low", query: "limit=0", want: 1},
		{name: "garbage", query: "limit=abc", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			got := parseIntParam(r, "limit", DefaultMessageLimit, 1, MaxMessageLimit)
			assert.Equal(t, tt.want, got)
		})
	}
}
