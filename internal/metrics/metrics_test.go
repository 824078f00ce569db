package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorsAreRegistered(t *testing.T) {
	_, err := Registry.Gather()
	assert.NoError(t, err)

	AdapterLatency.WithLabelValues("tools/list").Observe(0.01)
	RouterSelections.WithLabelValues("round-robin").Inc()
	RegistryInstances.WithLabelValues("running").Set(3)

	count, err := testutil.GatherAndCount(Registry)
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}
