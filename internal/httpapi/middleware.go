package httpapi

import (
	"net/http"
	"strings"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/auth"
)

// bearerOrKey extracts credentials from Authorization: Bearer <token>,
// falling back to the X-API-Key/X-API-Token/apikey headers some clients
// use interchangeably with a bearer token.
func bearerOrKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	for _, header := range []string{"X-API-Key", "X-API-Token", "apikey"} {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	return ""
}

// withAuth enforces the process-wide rate limiter, resolves an
// Identity, and checks it against the required permission tier for
// resource before calling next.
func (s *Server) withAuth(required, resource string, next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, apierr.NewRateLimited("request rate limit exceeded"))
			return
		}

		raw := bearerOrKey(r)
		if raw == "" {
			writeError(w, apierr.NewUnauthorized("missing credentials"))
			return
		}
		id, err := s.auth.Authenticate(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		if !auth.HasPermission(id.Permissions, required, resource) {
			writeError(w, apierr.NewForbidden("FORBIDDEN", "insufficient permissions for "+resource))
			return
		}
		next(w, r, id)
	}
}

// withLocalMCP validates the Authorization: LocalMCP <token> scheme
// issued by a completed pairing handshake (§4.7/§4.9).
func (s *Server) withLocalMCP(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "LocalMCP ") {
			writeError(w, apierr.NewUnauthorized("missing LocalMCP bearer token"))
			return
		}
		token := strings.TrimPrefix(h, "LocalMCP ")
		origin := r.Header.Get("Origin")
		if err := s.pairing.Authenticate(token, origin); err != nil {
			writeError(w, err)
			return
		}
		next(w, r)
	}
}
