package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-gateway/internal/model"
)

type fakeSource struct {
	mu        sync.Mutex
	instances []model.Instance
	meta      map[string]map[string]any
}

func newFakeSource(instances ...model.Instance) *fakeSource {
	return &fakeSource{instances: instances, meta: make(map[string]map[string]any)}
}

func (f *fakeSource) RunningKeepAlive() []model.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Instance(nil), f.instances...)
}

func (f *fakeSource) SetInstanceMetadata(id, key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meta[id] == nil {
		f.meta[id] = map[string]any{}
	}
	f.meta[id][key] = value
}

func TestRing_PercentilesAndErrorRate(t *testing.T) {
	r := &ring{}
	for i := 1; i <= 10; i++ {
		r.push(time.Duration(i)*time.Millisecond, i != 10)
	}
	p95, p99 := r.percentiles()
	assert.GreaterOrEqual(t, p95, 9*time.Millisecond)
	assert.GreaterOrEqual(t, p99, p95)
	assert.InDelta(t, 0.1, r.errorRate(), 0.001)
}

func TestRing_CapsAtRingCapacity(t *testing.T) {
	r := &ring{}
	for i := 0; i < ringCapacity+10; i++ {
		r.push(time.Millisecond, true)
	}
	assert.Len(t, r.samples, ringCapacity)
}

func TestChecker_StatusBeforeAnyProbe(t *testing.T) {
	c := NewChecker(newFakeSource(), time.Second)
	st := c.Status("unknown")
	assert.False(t, st.Healthy)
	assert.Zero(t, st.SampleSize)
}

func TestChecker_ProbeOneUnreachableInstanceRecordsFailure(t *testing.T) {
	inst := model.Instance{
		ID: "i1",
		Config: model.Template{
			Transport: model.TransportHTTP,
			Endpoint:  "http://127.0.0.1:1/mcp",
			Timeout:   50,
		},
	}
	src := newFakeSource(inst)
	c := NewChecker(src, time.Second)

	c.probeOne(context.Background(), inst)

	st := c.Status("i1")
	assert.Equal(t, 1, st.SampleSize)
	assert.False(t, st.Healthy)
	require.NotNil(t, src.meta["i1"])
	assert.Contains(t, src.meta["i1"], "lastProbeError")
}

func TestChecker_Forget(t *testing.T) {
	inst := model.Instance{ID: "i1", Config: model.Template{Transport: model.TransportHTTP, Endpoint: "http://127.0.0.1:1/mcp", Timeout: 50}}
	c := NewChecker(newFakeSource(inst), time.Second)
	c.probeOne(context.Background(), inst)
	assert.NotZero(t, c.Status("i1").SampleSize)

	c.Forget("i1")
	assert.Zero(t, c.Status("i1").SampleSize)
}

func TestChecker_AggregatesIncludesProbed(t *testing.T) {
	inst := model.Instance{ID: "i1", Config: model.Template{Transport: model.TransportHTTP, Endpoint: "http://127.0.0.1:1/mcp", Timeout: 50}}
	c := NewChecker(newFakeSource(inst), time.Second)
	c.probeOne(context.Background(), inst)

	agg := c.Aggregates()
	require.Contains(t, agg, "i1")
	assert.Equal(t, 1, agg["i1"].SampleSize)
}
