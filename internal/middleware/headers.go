// AngelaMos | 2026
// headers.go

package middleware

import (
	"net/http"
)

const hstsValue = "max-age=63072000; includeSubDomains"

// SecurityHeaders sets the response headers suited to a JSON API. HSTS is
// only sent in production where TLS terminates in front of the service.
func SecurityHeaders(isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

			if isProduction {
				h.Set("Strict-Transport-Security", hstsValue)
			}

			next.ServeHTTP(w, r)
		})
	}
}
