package httpapi

import (
	"net/http"
	"strconv"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/model"
)

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.registry.ListServices())
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	inst, err := s.registry.GetService(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

type createServiceRequest struct {
	TemplateName string          `json:"templateName"`
	InstanceArgs model.Overrides `json:"instanceArgs"`
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req createServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TemplateName == "" {
		writeError(w, apierr.NewBadRequest("templateName is required"))
		return
	}
	inst, err := s.registry.CreateServiceFromTemplate(r.Context(), req.TemplateName, req.InstanceArgs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"serviceId": inst.ID,
		"message":   "service created",
	})
}

type updateEnvRequest struct {
	Env map[string]string `json:"env"`
}

func (s *Server) handleUpdateServiceEnv(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req updateEnvRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	inst, err := s.registry.UpdateServiceEnv(r.Context(), r.PathValue("id"), req.Env)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"serviceId": inst.ID,
		"message":   "service reincarnated with updated env",
	})
}

func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	id := r.PathValue("id")
	if ok := s.registry.StopService(r.Context(), id); !ok {
		writeError(w, apierr.ErrInstanceNotFound)
		return
	}
	s.registry.RemoveInstance(id)
	s.health.Forget(id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "service removed"})
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	id := r.PathValue("id")
	if _, err := s.registry.GetService(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.health.Status(id))
}

func (s *Server) handleServiceLogs(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	id := r.PathValue("id")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries := s.logs.Recent(limit * 4) // over-fetch, then filter by service below
	out := make([]any, 0, limit)
	for _, e := range entries {
		if e.Service != "" && e.Service != id {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}
