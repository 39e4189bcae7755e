package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAuth enforces the configured bearer token on state-changing
// endpoints. When no token is configured those endpoints are disabled.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.token) == "" {
			writeJSON(w, http.StatusForbidden, errorBody("state-changing endpoints disabled: no auth token configured"))
			return
		}
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeJSON(w, http.StatusUnauthorized, errorBody("authentication required"))
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody("invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the shared limiter to authenticated mutations.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
