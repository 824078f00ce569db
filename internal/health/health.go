// Package health implements the Health Checker: periodic tools/list
// probing of every running keep-alive instance, a bounded per-instance
// latency history, and rolling error-rate tracking. The backoff/threshold
// constants follow a crash-recovery loop's shape, adapted here into a
// read-only probe loop since the gateway delegates restart decisions to
// the registry rather than the checker.
package health

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mcp-gateway/internal/adapter"
	"mcp-gateway/internal/metrics"
	"mcp-gateway/internal/model"
	"mcp-gateway/pkg/logging"
)

// ringCapacity bounds the latency samples kept per instance (§4.3).
const ringCapacity = 64

// defaultInterval is the pause between probe passes absent config override.
const defaultInterval = 5 * time.Second

// probeTimeout bounds a single tools/list round trip, distinct from the
// adapter's own configured timeout so a slow instance cannot stall the
// whole probe pass.
const probeTimeout = 3 * time.Second

// maxConcurrentProbes bounds how many probes run at once per pass, so a
// fleet of keep-alive instances can't open hundreds of simultaneous
// connections to the same backends they're probing.
const maxConcurrentProbes = 8

// Source is the read/write surface the Health Checker needs from the
// Service Registry. *registry.Registry satisfies it structurally; the
// health package never imports registry, keeping the dependency
// one-directional.
type Source interface {
	RunningKeepAlive() []model.Instance
	SetInstanceMetadata(id, key string, value any)
}

// Status is a point-in-time health snapshot for one instance.
type Status struct {
	InstanceID string        `json:"instanceId"`
	Healthy    bool          `json:"healthy"`
	LastProbe  time.Time     `json:"lastProbe"`
	P95Latency time.Duration `json:"p95LatencyMs"`
	P99Latency time.Duration `json:"p99LatencyMs"`
	ErrorRate  float64       `json:"errorRate"`
	SampleSize int           `json:"sampleSize"`
}

// MarshalJSON writes the latency percentiles as milliseconds, matching
// their field names.
func (s Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		plain
		P95Latency float64 `json:"p95LatencyMs"`
		P99Latency float64 `json:"p99LatencyMs"`
	}{
		plain:      plain(s),
		P95Latency: float64(s.P95Latency) / float64(time.Millisecond),
		P99Latency: float64(s.P99Latency) / float64(time.Millisecond),
	})
}

type ring struct {
	samples []time.Duration
	outcome []bool // true = success
}

func (r *ring) push(d time.Duration, ok bool) {
	r.samples = append(r.samples, d)
	r.outcome = append(r.outcome, ok)
	if len(r.samples) > ringCapacity {
		r.samples = r.samples[1:]
		r.outcome = r.outcome[1:]
	}
}

func nearestRank(sorted []time.Duration, pct float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (r *ring) percentiles() (p95, p99 time.Duration) {
	if len(r.samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(r.samples))
	copy(sorted, r.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return nearestRank(sorted, 0.95), nearestRank(sorted, 0.99)
}

func (r *ring) errorRate() float64 {
	if len(r.outcome) == 0 {
		return 0
	}
	fails := 0
	for _, ok := range r.outcome {
		if !ok {
			fails++
		}
	}
	return float64(fails) / float64(len(r.outcome))
}

// Checker runs the periodic probe loop and serves health aggregates.
type Checker struct {
	source   Source
	interval time.Duration

	mu      sync.RWMutex
	rings   map[string]*ring
	lastRun map[string]time.Time
	healthy map[string]bool
}

// NewChecker constructs a Checker. An interval <= 0 uses the §4.3 default.
func NewChecker(source Source, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		source:   source,
		interval: interval,
		rings:    make(map[string]*ring),
		lastRun:  make(map[string]time.Time),
		healthy:  make(map[string]bool),
	}
}

// Run blocks, probing every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probeAll(ctx)
		}
	}
}

// probeAll fans out one probe per instance, at most maxConcurrentProbes
// outstanding at a time, so a pass over N instances costs roughly
// N/maxConcurrentProbes probeTimeouts rather than N of them.
func (c *Checker) probeAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)

	for _, inst := range c.source.RunningKeepAlive() {
		inst := inst
		g.Go(func() error {
			c.probeOne(gctx, inst)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Checker) probeOne(ctx context.Context, inst model.Instance) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := c.probe(pctx, inst)
	latency := time.Since(start)
	metrics.AdapterLatency.WithLabelValues(inst.Config.EffectiveProbeMethod()).Observe(latency.Seconds())

	c.mu.Lock()
	r, ok := c.rings[inst.ID]
	if !ok {
		r = &ring{}
		c.rings[inst.ID] = r
	}
	r.push(latency, err == nil)
	c.lastRun[inst.ID] = start
	c.healthy[inst.ID] = err == nil
	c.mu.Unlock()

	if err != nil {
		c.source.SetInstanceMetadata(inst.ID, "lastProbeError", err.Error())
		logging.Warn("Health", "probe failed for %s: %v", inst.ID, err)
	}
}

// probe issues a fresh adapter-level request using the instance's
// effective config. It does not reuse the registry's persistent adapter
// so that a hung connection cannot wedge the registry's own call path.
func (c *Checker) probe(ctx context.Context, inst model.Instance) error {
	method := inst.Config.EffectiveProbeMethod()

	a, err := adapter.New(inst.Config)
	if err != nil {
		return err
	}
	if err := a.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = a.Disconnect(context.Background()) }()

	_, err = a.SendAndReceive(ctx, &adapter.Request{
		JSONRPC: "2.0",
		ID:      "health-probe",
		Method:  method,
	})
	return err
}

// Status returns the current snapshot for one instance.
func (c *Checker) Status(id string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{InstanceID: id}
	r, ok := c.rings[id]
	if !ok {
		return st
	}
	p95, p99 := r.percentiles()
	st.Healthy = c.healthy[id]
	st.LastProbe = c.lastRun[id]
	st.P95Latency = p95
	st.P99Latency = p99
	st.ErrorRate = r.errorRate()
	st.SampleSize = len(r.samples)
	return st
}

// Aggregates returns a snapshot keyed by instance id, for
// getHealthAggregates() (§4.3): the health metrics endpoints and route
// selection. GET /api/services/:id/health uses Status instead.
func (c *Checker) Aggregates() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Status, len(c.rings))
	for id := range c.rings {
		r := c.rings[id]
		p95, p99 := r.percentiles()
		out[id] = Status{
			InstanceID: id,
			Healthy:    c.healthy[id],
			LastProbe:  c.lastRun[id],
			P95Latency: p95,
			P99Latency: p99,
			ErrorRate:  r.errorRate(),
			SampleSize: len(r.samples),
		}
	}
	return out
}

// Forget drops bookkeeping for a removed instance.
func (c *Checker) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rings, id)
	delete(c.lastRun, id)
	delete(c.healthy, id)
}
