package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/voxcache/ai/cache"
	"github.com/hrygo/voxcache/internal/profile"
	apiv1 "github.com/hrygo/voxcache/server/router/api/v1"
)

type panicCache struct{}

func (panicCache) Lookup(context.Context, string) (*cache.Result, bool) {
	panic("boom")
}

func (panicCache) Store(context.Context, cache.StoreRequest) cache.StoreOutcome {
	return cache.StoreSkippedDisabled
}

func (panicCache) Stats() cache.Stats { return cache.Stats{} }

func (panicCache) Clear(context.Context) error { return nil }

func (panicCache) AnchorsReady() bool { return true }

func newServer() *Server {
	p := &profile.Profile{Mode: "prod", Addr: "127.0.0.1", Port: 0}
	return NewServer(p, apiv1.NewAPIV1Service(p, panicCache{}, nil), nil)
}

func TestServerRequestID(t *testing.T) {
	s := newServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)
}

func TestServerRecoversFromPanic(t *testing.T) {
	s := newServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/lookup", strings.NewReader(`{"text":"Licht an bitte"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerStartAndShutdown(t *testing.T) {
	s := newServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	require.NoError(t, <-done)
	s.Shutdown(context.Background())
}
