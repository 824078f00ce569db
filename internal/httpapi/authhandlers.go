package httpapi

import (
	"net/http"
	"time"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/auth"
)

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.auth.ListAPIKeys())
}

type createAPIKeyRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apierr.NewBadRequest("name is required"))
		return
	}
	key, err := s.auth.CreateAPIKey(req.Name, req.Permissions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"apiKey": key})
}

func (s *Server) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if err := s.auth.DeleteAPIKey(r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.auth.ListTokens())
}

type createTokenRequest struct {
	UserID         string   `json:"userId"`
	Permissions    []string `json:"permissions"`
	ExpiresInHours int      `json:"expiresInHours"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req createTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, apierr.NewBadRequest("userId is required"))
		return
	}
	ttl := time.Duration(req.ExpiresInHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	tok, err := s.auth.GenerateToken(req.UserID, req.Permissions, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": tok})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if err := s.auth.RevokeToken(r.PathValue("token")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
