package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"mcp-gateway/internal/auth"
)

func (s *Server) handleHealthStatus(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, map[string]any{
		"registry": s.registry.GetRegistryStats(),
		"router":   s.router.GetMetrics(),
		"health":   s.health.Aggregates(),
	})
}

func (s *Server) handleMetricsRegistry(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.registry.GetRegistryStats())
}

func (s *Server) handleMetricsRouter(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.router.GetMetrics())
}

func (s *Server) handleMetricsServices(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.registry.ListServices())
}

func (s *Server) handleMetricsHealth(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.health.Aggregates())
}

func (s *Server) handleLogsRecent(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.logs.Recent(limit))
}

// handleLogsStream serves the Log Bus as an SSE stream (§4.6, §4.9):
// text/event-stream, no-cache, one `data: <json>\n\n` frame per
// appended entry, detaching the subscription when the write fails.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, cancel := s.logs.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, entry); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
