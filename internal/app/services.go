package app

import (
	"time"

	"mcp-gateway/internal/adapter"
	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/config"
	"mcp-gateway/internal/health"
	"mcp-gateway/internal/httpapi"
	"mcp-gateway/internal/logbus"
	"mcp-gateway/internal/pairing"
	"mcp-gateway/internal/registry"
	"mcp-gateway/internal/router"
	"mcp-gateway/internal/sandbox"
	"mcp-gateway/internal/template"
	"mcp-gateway/pkg/logging"
)

// healthProbeInterval is how often the Health Checker re-probes every
// running instance.
const healthProbeInterval = 15 * time.Second

// Services holds every component the gateway wires together, in the
// dependency order they're constructed: registry and logbus have no
// dependencies, health wraps the registry as its Source, the router
// and auth stand alone, pairing stands alone, sandbox stands alone,
// and the HTTP server binds all of them.
type Services struct {
	Config   config.Config
	Registry *registry.Registry
	Health   *health.Checker
	Router   *router.Router
	Auth     *auth.Authenticator
	Logs     *logbus.Bus
	Pairing  *pairing.Manager
	Sandbox  *sandbox.Provisioner
	Server   *httpapi.Server
}

// InitializeServices constructs every gateway component and wires them
// into the HTTP surface, in dependency order.
func InitializeServices(cfg *Config) (*Services, error) {
	envCfg := config.Load()

	reg := registry.New()
	logs := logbus.New()
	reg.SetEventSink(func(serviceID string, ev adapter.Event) {
		logs.Append(ev.AsLogEntry(serviceID))
	})
	if n, err := template.Seed(reg, envCfg.TemplateSeedFile); err != nil {
		logging.Warn("App", "template seed file %q failed: %v", envCfg.TemplateSeedFile, err)
	} else if n > 0 {
		logging.Info("App", "registered %d template(s) from seed file %q", n, envCfg.TemplateSeedFile)
	}

	hc := health.NewChecker(reg, healthProbeInterval)
	rt := router.New()
	a := auth.New()
	pm := pairing.New()

	pins := sandbox.DefaultPinTable().ApplyChecksums(
		envCfg.RuntimeChecksums.Node,
		envCfg.RuntimeChecksums.Python,
		envCfg.RuntimeChecksums.Go,
	)
	sb := sandbox.NewProvisioner(envCfg.SandboxRoot, pins)

	server := httpapi.NewServer(envCfg, reg, hc, rt, a, logs, pm, sb)

	return &Services{
		Config:   envCfg,
		Registry: reg,
		Health:   hc,
		Router:   rt,
		Auth:     a,
		Logs:     logs,
		Pairing:  pm,
		Sandbox:  sb,
		Server:   server,
	}, nil
}
