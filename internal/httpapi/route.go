package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mcp-gateway/internal/adapter"
	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/auth"
	"mcp-gateway/internal/model"
	"mcp-gateway/internal/router"
	pkgstrings "mcp-gateway/pkg/strings"
)

const proxyPreviewMaxLen = 800

type routeRequest struct {
	Method       string `json:"method"`
	Params       any    `json:"params,omitempty"`
	ServiceGroup string `json:"serviceGroup,omitempty"`
	Policy       string `json:"policy,omitempty"`
}

// candidatesFor collects every instance belonging to serviceGroup (here,
// the template name), whatever its state; an empty serviceGroup takes
// every instance regardless of template. router.Select drops the ones
// that are not running.
func (s *Server) candidatesFor(serviceGroup string) []model.Instance {
	all := s.registry.ListServices()
	if serviceGroup == "" {
		return all
	}
	out := make([]model.Instance, 0, len(all))
	for _, inst := range all {
		if inst.TemplateName == serviceGroup {
			out = append(out, inst)
		}
	}
	return out
}

func policyFromString(requested, configured string) router.Policy {
	p := requested
	if p == "" {
		p = configured
	}
	return router.Policy(p)
}

// handleRoute resolves the instance a call would be sent to under the
// configured load-balancing policy, without actually issuing the call
// (§4.4 + §6 POST /api/route).
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	var req routeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	policy := policyFromString(req.Policy, s.cfg.LoadBalancingStrategy)
	candidates := s.candidatesFor(req.ServiceGroup)
	statuses := s.health.Aggregates()

	chosen, err := s.router.Select(req.ServiceGroup, candidates, statuses, policy)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"selectedService": chosen,
		"routingDecision": map[string]any{
			"policy":       policy,
			"serviceGroup": req.ServiceGroup,
			"candidates":   len(candidates),
		},
	})
}

type proxyRequestBody struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// handleProxy resolves serviceId, acquires an adapter for its effective
// config, issues sendAndReceive, tags the request/response into the Log
// Bus with an 800-char truncated preview, and returns the JSON-RPC
// response unchanged (§4.9, §5).
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	serviceID := r.PathValue("serviceId")
	inst, err := s.registry.GetService(serviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	var body proxyRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	s.router.Acquire(serviceID)
	defer s.router.Release(serviceID)

	resp, err := s.dispatchProxy(r.Context(), inst, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// dispatchProxy builds (or, for persistent stdio instances, borrows) an
// adapter, sends the call, and logs it in one scope guard. Only
// non-stdio adapters are disconnected afterward; a stdio instance's
// adapter is the registry's long-lived child process (§5: "adapters
// for a proxy call are not pooled... only health-probe adapters and
// persistent stdio children live across requests").
func (s *Server) dispatchProxy(ctx context.Context, inst model.Instance, body proxyRequestBody) (*adapter.Response, error) {
	var a adapter.Adapter
	ephemeral := true

	if persistent, ok := s.registry.Adapter(inst.ID); ok {
		a = persistent
		ephemeral = false
	} else {
		built, err := adapter.New(inst.Config)
		if err != nil {
			return nil, err
		}
		if err := built.Connect(ctx); err != nil {
			return nil, apierr.NewInternal("PROXY_CONNECT_FAILED", err)
		}
		a = built
		// A persistent adapter's Events() is already drained for the
		// life of the instance by the registry that created it; an
		// ephemeral one needs its own drain, bounded by this call's
		// Disconnect below closing the channel.
		go s.drainAdapterEvents(inst.ID, a)
	}
	if ephemeral {
		defer func() { _ = a.Disconnect(context.Background()) }()
	}

	start := time.Now()
	resp, err := a.SendAndReceive(ctx, &adapter.Request{JSONRPC: "2.0", ID: body.ID, Method: body.Method, Params: body.Params})
	latency := time.Since(start)

	s.logProxyCall(inst, body, resp, err, latency)

	if err != nil {
		return nil, apierr.NewInternal("PROXY_CALL_FAILED", err)
	}
	return resp, nil
}

// drainAdapterEvents forwards a.Events() into the Log Bus tagged with
// serviceID until the channel closes (on Disconnect), satisfying the
// proxy surface's "wire adapter events into the log bus" contract for
// stderr/sent/message/exit events, not just the one hand-built summary
// entry logProxyCall appends per call.
func (s *Server) drainAdapterEvents(serviceID string, a adapter.Adapter) {
	for ev := range a.Events() {
		s.logs.Append(ev.AsLogEntry(serviceID))
	}
}

func (s *Server) logProxyCall(inst model.Instance, body proxyRequestBody, resp *adapter.Response, err error, latency time.Duration) {
	paramsJSON, _ := json.Marshal(body.Params)
	entry := model.LogEntry{
		Timestamp: time.Now(),
		Level:     model.LogInfo,
		Service:   inst.ID,
		Message:   "proxy call " + body.Method,
		Data: map[string]any{
			"latencyMs":     latency.Milliseconds(),
			"paramsPreview": pkgstrings.TruncateDescription(string(paramsJSON), proxyPreviewMaxLen),
		},
	}
	if err != nil {
		entry.Level = model.LogError
		entry.Message = "proxy call " + body.Method + " failed: " + err.Error()
	} else if resp != nil {
		resultJSON, _ := json.Marshal(resp.Result)
		if data, ok := entry.Data.(map[string]any); ok {
			data["resultPreview"] = pkgstrings.TruncateDescription(string(resultJSON), proxyPreviewMaxLen)
		}
	}
	s.logs.Append(entry)
}
