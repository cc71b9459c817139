// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/license-gate/internal/config"
	"github.com/carterperez-dev/license-gate/internal/health"
)

func TestServer_ShutdownFailsHealthChecks(t *testing.T) {
	healthHandler := health.NewHandler()
	srv := New(Config{
		ServerConfig:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
		HealthHandler: healthHandler,
	})
	healthHandler.RegisterRoutes(srv.Router())

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, srv.Shutdown(context.Background(), 0))

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}

func TestServer_RecoversPanics(t *testing.T) {
	srv := New(Config{})
	srv.Router().Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
