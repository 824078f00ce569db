package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/health"
	"mcp-gateway/internal/model"
)

func instances(ids ...string) []model.Instance {
	out := make([]model.Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Instance{ID: id, State: model.StateRunning})
	}
	return out
}

func TestSelect_NoHealthyReturnsErr(t *testing.T) {
	r := New()
	_, err := r.Select("g", nil, nil, PolicyRoundRobin)
	assert.ErrorIs(t, err, apierr.ErrNoServiceHealthy)
}

func TestSelect_RoundRobinCycles(t *testing.T) {
	r := New()
	cand := instances("a", "b", "c")

	var order []string
	for i := 0; i < 6; i++ {
		inst, err := r.Select("g", cand, nil, PolicyRoundRobin)
		require.NoError(t, err)
		order = append(order, inst.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
}

func TestSelect_RoundRobinCursorsAreIndependentPerGroup(t *testing.T) {
	r := New()
	cand := instances("a", "b")

	first, _ := r.Select("g1", cand, nil, PolicyRoundRobin)
	_, _ = r.Select("g2", cand, nil, PolicyRoundRobin)
	second, _ := r.Select("g1", cand, nil, PolicyRoundRobin)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestSelect_SkipsUnhealthyInstances(t *testing.T) {
	r := New()
	cand := instances("a", "b")
	statuses := map[string]health.Status{"a": {Healthy: false}}

	inst, err := r.Select("g", cand, statuses, PolicyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "b", inst.ID)
}

func TestSelect_SkipsNonRunningInstances(t *testing.T) {
	r := New()
	cand := []model.Instance{{ID: "a", State: model.StateStopped}, {ID: "b", State: model.StateRunning}}

	inst, err := r.Select("g", cand, nil, PolicyRoundRobin)
	require.NoError(t, err)
	assert.Equal(t, "b", inst.ID)
}

func TestSelect_LeastConnections(t *testing.T) {
	r := New()
	cand := instances("a", "b")
	r.Acquire("a")
	r.Acquire("a")
	r.Acquire("b")

	inst, err := r.Select("g", cand, nil, PolicyLeastConnections)
	require.NoError(t, err)
	assert.Equal(t, "b", inst.ID)

	r.Release("b")
	r.Release("b")
	assert.Equal(t, int64(0), r.GetMetrics().ActiveConns["b"])
}

func TestSelect_LatencyAwarePrefersLowerP95(t *testing.T) {
	r := New()
	cand := instances("a", "b")
	statuses := map[string]health.Status{
		"a": {Healthy: true, P95Latency: 200 * time.Millisecond, SampleSize: 10},
		"b": {Healthy: true, P95Latency: 20 * time.Millisecond, SampleSize: 10},
	}

	inst, err := r.Select("g", cand, statuses, PolicyLatencyAware)
	require.NoError(t, err)
	assert.Equal(t, "b", inst.ID)
}

func TestGetMetrics_TracksSelections(t *testing.T) {
	r := New()
	cand := instances("a")
	_, err := r.Select("g", cand, nil, PolicyRoundRobin)
	require.NoError(t, err)

	m := r.GetMetrics()
	assert.Equal(t, int64(1), m.Selections["a"])
}
