package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/config"
	"mcp-gateway/internal/health"
	"mcp-gateway/internal/logbus"
	"mcp-gateway/internal/metrics"
	"mcp-gateway/internal/pairing"
	"mcp-gateway/internal/registry"
	"mcp-gateway/internal/router"
	"mcp-gateway/internal/sandbox"
)

const version = "1.0.0"

// Server wires the registry, health checker, router, authenticator,
// log bus, pairing manager, and sandbox provisioner behind net/http.
// Construction never fails; routes are registered eagerly in NewServer
// so the returned *Server is ready to be handed to http.Serve.
type Server struct {
	cfg      config.Config
	registry *registry.Registry
	health   *health.Checker
	router   *router.Router
	auth     *auth.Authenticator
	logs     *logbus.Bus
	pairing  *pairing.Manager
	sandbox  *sandbox.Provisioner

	mux *http.ServeMux

	// limiter is a coarse per-process token bucket guarding /api/* ahead
	// of the auth check, independent of pairing's per-origin limiter.
	limiter *rate.Limiter
}

// NewServer builds the mux and returns a ready-to-serve Server: a
// small set of always-public routes, everything else behind the auth
// pre-hook.
func NewServer(cfg config.Config, reg *registry.Registry, hc *health.Checker, rt *router.Router, a *auth.Authenticator, lb *logbus.Bus, pm *pairing.Manager, sb *sandbox.Provisioner) *Server {
	s := &Server{
		cfg:      cfg,
		registry: reg,
		health:   hc,
		router:   rt,
		auth:     a,
		logs:     lb,
		pairing:  pm,
		sandbox:  sb,
		mux:      http.NewServeMux(),
		limiter:  rate.NewLimiter(rate.Limit(50), 100),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Always public.
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /local-proxy/code", s.handleLocalProxyCode)
	s.mux.HandleFunc("POST /handshake/init", s.handlePairingInit)
	s.mux.HandleFunc("POST /handshake/approve", s.handlePairingApprove)
	s.mux.HandleFunc("POST /handshake/confirm", s.handlePairingConfirm)

	// LocalMCP-authenticated browser surface.
	s.mux.HandleFunc("GET /tools", s.withLocalMCP(s.handleLocalTools))
	s.mux.HandleFunc("POST /call", s.withLocalMCP(s.handleLocalCall))

	// /api/* requires Bearer/API-key auth plus the coarse rate limiter.
	s.mux.HandleFunc("GET /api/services", s.withAuth(auth.PermRead, "services", s.handleListServices))
	s.mux.HandleFunc("GET /api/services/{id}", s.withAuth(auth.PermRead, "services", s.handleGetService))
	s.mux.HandleFunc("POST /api/services", s.withAuth(auth.PermWrite, "services", s.handleCreateService))
	s.mux.HandleFunc("PATCH /api/services/{id}/env", s.withAuth(auth.PermWrite, "services", s.handleUpdateServiceEnv))
	s.mux.HandleFunc("DELETE /api/services/{id}", s.withAuth(auth.PermWrite, "services", s.handleDeleteService))
	s.mux.HandleFunc("GET /api/services/{id}/health", s.withAuth(auth.PermRead, "services", s.handleServiceHealth))
	s.mux.HandleFunc("GET /api/services/{id}/logs", s.withAuth(auth.PermRead, "services", s.handleServiceLogs))

	s.mux.HandleFunc("GET /api/templates", s.withAuth(auth.PermRead, "templates", s.handleListTemplates))
	s.mux.HandleFunc("GET /api/templates/{name}", s.withAuth(auth.PermRead, "templates", s.handleGetTemplate))
	s.mux.HandleFunc("POST /api/templates", s.withAuth(auth.PermWrite, "templates", s.handleRegisterTemplate))
	s.mux.HandleFunc("DELETE /api/templates/{name}", s.withAuth(auth.PermWrite, "templates", s.handleRemoveTemplate))
	s.mux.HandleFunc("POST /api/templates/repair", s.withAuth(auth.PermWrite, "templates", s.handleRepairTemplates))
	s.mux.HandleFunc("POST /api/templates/repair-images", s.withAuth(auth.PermWrite, "templates", s.handleRepairTemplateImages))
	s.mux.HandleFunc("POST /api/templates/{name}/diagnose", s.withAuth(auth.PermRead, "templates", s.handleDiagnoseTemplate))

	s.mux.HandleFunc("GET /api/auth/apikeys", s.withAuth(auth.PermAdmin, "auth", s.handleListAPIKeys))
	s.mux.HandleFunc("POST /api/auth/apikey", s.withAuth(auth.PermAdmin, "auth", s.handleCreateAPIKey))
	s.mux.HandleFunc("DELETE /api/auth/apikey/{key}", s.withAuth(auth.PermAdmin, "auth", s.handleDeleteAPIKey))
	s.mux.HandleFunc("GET /api/auth/tokens", s.withAuth(auth.PermAdmin, "auth", s.handleListTokens))
	s.mux.HandleFunc("POST /api/auth/token", s.withAuth(auth.PermAdmin, "auth", s.handleCreateToken))
	s.mux.HandleFunc("DELETE /api/auth/token/{token}", s.withAuth(auth.PermAdmin, "auth", s.handleRevokeToken))

	s.mux.HandleFunc("POST /api/route", s.withAuth(auth.PermRead, "route", s.handleRoute))
	s.mux.HandleFunc("POST /api/proxy/{serviceId}", s.withAuth(auth.PermWrite, "proxy", s.handleProxy))

	s.mux.HandleFunc("GET /api/health-status", s.withAuth(auth.PermRead, "health", s.handleHealthStatus))
	s.mux.HandleFunc("GET /api/metrics/registry", s.withAuth(auth.PermRead, "metrics", s.handleMetricsRegistry))
	s.mux.HandleFunc("GET /api/metrics/router", s.withAuth(auth.PermRead, "metrics", s.handleMetricsRouter))
	s.mux.HandleFunc("GET /api/metrics/services", s.withAuth(auth.PermRead, "metrics", s.handleMetricsServices))
	s.mux.HandleFunc("GET /api/metrics/health", s.withAuth(auth.PermRead, "metrics", s.handleMetricsHealth))

	s.mux.HandleFunc("GET /api/logs", s.withAuth(auth.PermRead, "logs", s.handleLogsRecent))
	s.mux.HandleFunc("GET /api/logs/stream", s.withAuth(auth.PermRead, "logs", s.handleLogsStream))

	s.mux.HandleFunc("GET /api/sandbox/status", s.withAuth(auth.PermAdmin, "sandbox", s.handleSandboxStatus))
	s.mux.HandleFunc("POST /api/sandbox/install", s.withAuth(auth.PermAdmin, "sandbox", s.handleSandboxInstall))
	s.mux.HandleFunc("GET /api/sandbox/install/stream", s.withAuth(auth.PermAdmin, "sandbox", s.handleSandboxInstallStream))
	s.mux.HandleFunc("POST /api/sandbox/repair", s.withAuth(auth.PermAdmin, "sandbox", s.handleSandboxRepair))
	s.mux.HandleFunc("POST /api/sandbox/cleanup", s.withAuth(auth.PermAdmin, "sandbox", s.handleSandboxCleanup))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   version,
		"services": map[string]any{
			"registry": true,
			"auth":     true,
			"router":   true,
		},
	})
}

// rc builds a pairing.RequestContext from the incoming request's
// host/origin/Sec-Fetch-Site headers (§4.7/§4.9).
func rc(r *http.Request) pairing.RequestContext {
	host := r.Host
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return pairing.RequestContext{
		Host:         host,
		Origin:       r.Header.Get("Origin"),
		SecFetchSite: r.Header.Get("Sec-Fetch-Site"),
	}
}
