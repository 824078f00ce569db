// Package metrics exposes the gateway's Prometheus collectors: adapter
// round-trip latency, router selection counts, and registry state
// gauges, backing the GET /metrics exposition surface alongside the
// JSON-shaped GET /api/metrics/* endpoints in internal/httpapi.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the gateway's private Prometheus registry, kept separate
// from the global default registry; the collectors below are registered
// on it once, in init.
var Registry = prometheus.NewRegistry()

var (
	// AdapterLatency observes the duration of each health probe (adapter
	// connect, probe request and disconnect) by probe method.
	AdapterLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_adapter_latency_seconds",
		Help:    "Duration of health probes through a fresh adapter, by probe method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// RouterSelections counts instance selections by policy.
	RouterSelections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_router_selections_total",
		Help: "Number of instance selections made by the router, by policy.",
	}, []string{"policy"})

	// RegistryInstances gauges live instance counts by state.
	RegistryInstances = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_registry_instances",
		Help: "Current instance count by lifecycle state.",
	}, []string{"state"})
)

func init() {
	Registry.MustRegister(AdapterLatency, RouterSelections, RegistryInstances)
}
