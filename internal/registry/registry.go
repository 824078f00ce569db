// Package registry implements the Service Registry: template CRUD,
// instance CRUD, and the instance state machine, behind a
// sync.RWMutex-guarded map with a notify channel and instance
// lifecycle bookkeeping.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mcp-gateway/internal/adapter"
	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/metrics"
	"mcp-gateway/internal/model"
	"mcp-gateway/pkg/logging"
)

// debounce is the pause between stopping and recreating an instance
// during env-update reincarnation (§4.2).
const debounce = 1 * time.Second

// Registry is the single source of truth for (id -> instance) and
// (name -> template). Reads may proceed concurrently; each key has a
// single writer at a time via the shared RWMutex.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*model.Template
	instances map[string]*model.Instance
	adapters  map[string]adapter.Adapter

	updateChan chan struct{}

	eventSink func(serviceID string, ev adapter.Event)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		templates:  make(map[string]*model.Template),
		instances:  make(map[string]*model.Instance),
		adapters:   make(map[string]adapter.Adapter),
		updateChan: make(chan struct{}, 1),
	}
}

// SetEventSink installs the callback a persistent stdio instance's
// adapter events are forwarded to, tagged with the instance id. Must be
// called before CreateServiceFromTemplate if events are to be captured;
// a nil sink (the default) means events are dropped.
func (r *Registry) SetEventSink(sink func(serviceID string, ev adapter.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventSink = sink
}

func (r *Registry) notify() {
	select {
	case r.updateChan <- struct{}{}:
	default:
	}
}

// Updates returns a channel that receives a signal after any mutation.
// The channel has a capacity of 1; consumers should drain it and
// re-snapshot rather than treat each send as a distinct event.
func (r *Registry) Updates() <-chan struct{} { return r.updateChan }

// RegisterTemplate validates and upserts a template by name (§4.2).
func (r *Registry) RegisterTemplate(cfg model.Template) error {
	if cfg.Name == "" {
		return apierr.NewUnprocessable("template name is required")
	}
	switch cfg.Transport {
	case model.TransportStdio:
		if cfg.Command == "" {
			return apierr.NewUnprocessable("stdio template requires a command")
		}
	case model.TransportHTTP, model.TransportStreamableHTTP:
		if cfg.Endpoint == "" {
			return apierr.NewUnprocessable("http template requires an endpoint")
		}
	default:
		return apierr.NewUnprocessable(fmt.Sprintf("unsupported transport %q", cfg.Transport))
	}
	if cfg.Container != nil && cfg.Container.Image == "" {
		return apierr.NewUnprocessable("container mode requires an image")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[cfg.Name] = &cfg
	r.notify()
	logging.Info("Registry", "Registered template %s", cfg.Name)
	return nil
}

// ListTemplates returns a snapshot of all templates.
func (r *Registry) ListTemplates() []model.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, *t)
	}
	return out
}

// GetTemplate returns a named template, or ErrTemplateNotFound.
func (r *Registry) GetTemplate(name string) (model.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return model.Template{}, apierr.ErrTemplateNotFound
	}
	return *t, nil
}

// RemoveTemplate deletes a template by name; it does not stop instances
// already created from it.
func (r *Registry) RemoveTemplate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[name]; !ok {
		return apierr.ErrTemplateNotFound
	}
	delete(r.templates, name)
	r.notify()
	return nil
}

func mergeOverrides(tmpl model.Template, ov model.Overrides) model.Template {
	eff := tmpl
	if len(ov.Env) > 0 {
		merged := make(map[string]string, len(tmpl.Env)+len(ov.Env))
		for k, v := range tmpl.Env {
			merged[k] = v
		}
		for k, v := range ov.Env {
			merged[k] = v
		}
		eff.Env = merged
	}
	if len(ov.Args) > 0 {
		eff.Args = ov.Args
	}
	if ov.Command != "" {
		eff.Command = ov.Command
	}
	return eff
}

// CreateServiceFromTemplate resolves a template, merges overrides,
// allocates a fresh id, and spawns (stdio) or marks-running (http) the
// instance per §4.2.
func (r *Registry) CreateServiceFromTemplate(ctx context.Context, templateName string, ov model.Overrides) (*model.Instance, error) {
	r.mu.Lock()
	tmpl, ok := r.templates[templateName]
	if !ok {
		r.mu.Unlock()
		return nil, apierr.ErrTemplateNotFound
	}
	eff := mergeOverrides(*tmpl, ov)

	mode := ov.Mode
	if mode == "" {
		mode = model.ModeKeepAlive
	}

	inst := &model.Instance{
		ID:           uuid.NewString(),
		TemplateName: templateName,
		Config:       eff,
		State:        model.StateInitializing,
		Mode:         mode,
		Metadata:     map[string]any{},
	}
	r.instances[inst.ID] = inst
	r.mu.Unlock()

	r.transition(inst.ID, model.StateStarting)

	switch eff.Transport {
	case model.TransportStdio:
		a, err := adapter.New(eff)
		if err != nil {
			r.fail(inst.ID, err)
			return nil, err
		}
		if err := a.Connect(ctx); err != nil {
			r.fail(inst.ID, err)
			return nil, apierr.NewInternal("SPAWN_FAILED", err)
		}
		r.mu.Lock()
		r.adapters[inst.ID] = a
		sink := r.eventSink
		r.mu.Unlock()
		if sink != nil {
			go drainEvents(inst.ID, a, sink)
		}
	default:
		// http / streamable-http: marked running without a persistent
		// connection; adapters for these transports are built per-call.
	}

	now := time.Now()
	r.mu.Lock()
	inst.State = model.StateRunning
	inst.StartedAt = &now
	r.mu.Unlock()
	r.notify()

	logging.Info("Registry", "Instance %s (%s) running", inst.ID, templateName)
	snap := *inst
	return &snap, nil
}

// drainEvents forwards a persistent adapter's event stream to sink,
// tagged with serviceID, until the adapter disconnects and closes the
// channel (StopService/RemoveInstance).
func drainEvents(serviceID string, a adapter.Adapter, sink func(string, adapter.Event)) {
	for ev := range a.Events() {
		sink(serviceID, ev)
	}
}

func (r *Registry) transition(id string, state model.InstanceState) {
	r.mu.Lock()
	if inst, ok := r.instances[id]; ok {
		inst.State = state
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Registry) fail(id string, err error) {
	r.mu.Lock()
	if inst, ok := r.instances[id]; ok {
		inst.State = model.StateError
		inst.ErrorCount++
		inst.Metadata["lastProbeError"] = err.Error()
	}
	r.mu.Unlock()
	r.notify()
	logging.Error("Registry", err, "Instance %s failed to start", id)
}

// StopService transitions running -> stopping -> stopped and
// disconnects the adapter. Returns false if no such instance exists.
func (r *Registry) StopService(ctx context.Context, id string) bool {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	inst.State = model.StateStopping
	a := r.adapters[id]
	delete(r.adapters, id)
	r.mu.Unlock()
	r.notify()

	if a != nil {
		_ = a.Disconnect(ctx)
	}

	r.mu.Lock()
	inst.State = model.StateStopped
	r.mu.Unlock()
	r.notify()
	return true
}

// RemoveInstance deletes a stopped instance's bookkeeping entry.
// "stopped" is terminal until explicit removal; DELETE
// /api/services/:id performs stop followed by removal.
func (r *Registry) RemoveInstance(id string) {
	r.mu.Lock()
	delete(r.instances, id)
	delete(r.adapters, id)
	r.mu.Unlock()
	r.notify()
}

// GetService returns a snapshot of a single instance.
func (r *Registry) GetService(id string) (model.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return model.Instance{}, apierr.ErrInstanceNotFound
	}
	return *inst, nil
}

// ListServices returns a snapshot of every instance.
func (r *Registry) ListServices() []model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, *inst)
	}
	return out
}

// Adapter returns the live adapter handle for an instance, if one is
// held persistently (stdio instances only).
func (r *Registry) Adapter(id string) (adapter.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// SetInstanceMetadata attaches an open-ended metadata value to an
// instance; used by the Health Checker to record lastProbeError.
func (r *Registry) SetInstanceMetadata(id, key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[id]; ok {
		if inst.Metadata == nil {
			inst.Metadata = map[string]any{}
		}
		inst.Metadata[key] = value
	}
}

// RunningKeepAlive implements health.Source: it returns every instance
// currently running in keep-alive mode, the only population the Health
// Checker probes (§4.3).
func (r *Registry) RunningKeepAlive() []model.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Instance, 0)
	for _, inst := range r.instances {
		if inst.State == model.StateRunning && inst.Mode == model.ModeKeepAlive {
			out = append(out, *inst)
		}
	}
	return out
}

// UpdateServiceEnv performs reincarnation (§4.2): stop the current
// instance, pause for the debounce period, then recreate from the same
// template with the env patch merged in. Returns the new instance.
func (r *Registry) UpdateServiceEnv(ctx context.Context, id string, envPatch map[string]string) (*model.Instance, error) {
	r.mu.RLock()
	inst, ok := r.instances[id]
	if !ok {
		r.mu.RUnlock()
		return nil, apierr.ErrInstanceNotFound
	}
	templateName := inst.TemplateName
	mergedEnv := make(map[string]string, len(inst.Config.Env)+len(envPatch))
	for k, v := range inst.Config.Env {
		mergedEnv[k] = v
	}
	for k, v := range envPatch {
		mergedEnv[k] = v
	}
	r.mu.RUnlock()

	if ok := r.StopService(ctx, id); !ok {
		return nil, apierr.ErrInstanceNotFound
	}
	r.RemoveInstance(id)

	select {
	case <-time.After(debounce):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return r.CreateServiceFromTemplate(ctx, templateName, model.Overrides{Env: mergedEnv})
}

// Stats are state counts used by getRegistryStats() / GET
// /api/metrics/registry.
type Stats struct {
	Total   int                          `json:"total"`
	ByState map[model.InstanceState]int  `json:"byState"`
}

// GetRegistryStats returns counters by instance state (§4.2).
func (r *Registry) GetRegistryStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := Stats{ByState: make(map[model.InstanceState]int)}
	for _, inst := range r.instances {
		stats.Total++
		stats.ByState[inst.State]++
	}
	for _, state := range []model.InstanceState{
		model.StateInitializing, model.StateStarting, model.StateRunning,
		model.StateStopping, model.StateStopped, model.StateCrashed, model.StateError,
	} {
		metrics.RegistryInstances.WithLabelValues(string(state)).Set(float64(stats.ByState[state]))
	}
	return stats
}
