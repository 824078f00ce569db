package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/sandbox"
)

func (s *Server) handleSandboxStatus(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	writeJSON(w, http.StatusOK, s.sandbox.Inspect())
}

type sandboxComponentsRequest struct {
	Components []string `json:"components"`
}

func componentsFromStrings(raw []string) []sandbox.Component {
	out := make([]sandbox.Component, 0, len(raw))
	for _, c := range raw {
		out = append(out, sandbox.Component(c))
	}
	return out
}

func (s *Server) handleSandboxInstall(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req sandboxComponentsRequest
	_ = decodeJSON(r, &req) // body is optional; defaults to every component

	if err := s.sandbox.Install(r.Context(), componentsFromStrings(req.Components)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleSandboxInstallStream streams install progress as SSE, reading
// the component list from ?components=a,b per §6.
func (s *Server) handleSandboxInstallStream(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	var components []sandbox.Component
	if raw := r.URL.Query().Get("components"); raw != "" {
		components = componentsFromStrings(strings.Split(raw, ","))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, cancel := s.sandbox.Subscribe()
	defer cancel()

	go func() {
		_ = s.sandbox.InstallStream(r.Context(), components)
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Kind == sandbox.EventComplete || ev.Kind == sandbox.EventError {
				return
			}
		}
	}
}

// handleSandboxRepair re-runs install only for components whose
// readiness probe currently fails (§4.8 supplement).
func (s *Server) handleSandboxRepair(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req sandboxComponentsRequest
	_ = decodeJSON(r, &req)

	requested := componentsFromStrings(req.Components)
	if len(requested) == 0 {
		requested = []sandbox.Component{sandbox.ComponentNode, sandbox.ComponentPython, sandbox.ComponentGo, sandbox.ComponentPackages}
	}

	ready := s.sandbox.Inspect()
	failing := make([]sandbox.Component, 0, len(requested))
	for _, c := range requested {
		switch c {
		case sandbox.ComponentNode:
			if !ready.Node {
				failing = append(failing, c)
			}
		case sandbox.ComponentPython:
			if !ready.Python {
				failing = append(failing, c)
			}
		case sandbox.ComponentGo:
			if !ready.Go {
				failing = append(failing, c)
			}
		case sandbox.ComponentPackages:
			if !ready.Packages {
				failing = append(failing, c)
			}
		}
	}

	if len(failing) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "repaired": []string{}})
		return
	}
	if err := s.sandbox.Install(r.Context(), failing); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "repaired": failing})
}

func (s *Server) handleSandboxCleanup(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if err := s.sandbox.Cleanup(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
