// AngelaMos | 2026
// ratelimit_test.go

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimiter_LocalOnlyWithoutRedis(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{
		Limit: PerMinute(1, 2),
	})
	h := limiter.Handler(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
		}
	}

	assert.Equal(t, []int{
		http.StatusOK,
		http.StatusOK,
		http.StatusTooManyRequests,
	}, codes)
}

func TestRateLimiter_SeparateBucketsPerAddress(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{
		Limit: PerMinute(1, 1),
	})
	h := limiter.Handler(okHandler)

	for _, addr := range []string{"198.51.100.1:1", "198.51.100.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, addr)
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_Bypass(t *testing.T) {
	limiter := NewRateLimiter(nil, RateLimitConfig{
		Limit:      PerMinute(1, 1),
		BypassFunc: func(*http.Request) bool { return true },
	})
	h := limiter.Handler(okHandler)

	for range 5 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestKeyByIPAndEndpoint(t *testing.T) {
	req := httptest.NewRequest(
		http.MethodPost,
		"/api/admin/vouches/7b0c9f5e-3c56-4d0e-9d1b-3f1f3a0c2b11/approve",
		nil,
	)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.0.2.9")

	assert.Equal(t,
		"ratelimit:ip:192.0.2.9:endpoint:/api/admin/vouches/{id}/approve",
		KeyByIPAndEndpoint(req),
	)
}

func TestKeyByUserFallsBackToIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:9999"
	assert.Equal(t, "ratelimit:ip:192.0.2.1", KeyByUser(req))

	ctx := withClaims(req.Context(), &AccessTokenClaims{UserID: "acc-1"})
	assert.Equal(t, "ratelimit:user:acc-1", KeyByUser(req.WithContext(ctx)))
}
