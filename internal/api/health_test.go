package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthLiveness(t *testing.T) {
	handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, nil, nil)

	w := getPath(t, handler, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHealthReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, nil, &fakePinger{})
		w := getPath(t, handler, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("database down", func(t *testing.T) {
		handler := newTestHandler(&fakeChatService{}, &fakeIngestService{}, nil, &fakePinger{err: errors.New("refused")})
		w := getPath(t, handler, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
