// AngelaMos | 2026
// middleware_test.go

package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, seen, 36)
}

func TestLogger_WritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestID(Logger(logger)(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short"))
		},
	)))

	req := httptest.NewRequest(http.MethodGet, "/api/vouches", nil)
	req.Header.Set(RequestIDHeader, "req-log")
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	assert.Contains(t, line, `"status":418`)
	assert.Contains(t, line, `"bytes":5`)
	assert.Contains(t, line, `"path":"/api/vouches"`)
	assert.Contains(t, line, `"request_id":"req-log"`)
}

func TestSecurityHeaders(t *testing.T) {
	for _, prod := range []bool{false, true} {
		rec := httptest.NewRecorder()
		SecurityHeaders(prod)(okHandler).ServeHTTP(
			rec,
			httptest.NewRequest(http.MethodGet, "/", nil),
		)

		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, prod, rec.Header().Get("Strict-Transport-Security") != "")
	}
}
