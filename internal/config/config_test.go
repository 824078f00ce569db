package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("port", "")
	t.Setenv("host", "")
	t.Setenv("loadBalancingStrategy", "")

	c := Load()
	assert.Equal(t, defaultHost, c.Host)
	assert.Equal(t, defaultPort, c.Port)
	assert.Equal(t, "round-robin", c.LoadBalancingStrategy)
	assert.Equal(t, "127.0.0.1:19233", c.Addr())
}

func TestLoad_ReadsOverrides(t *testing.T) {
	t.Setenv("host", "0.0.0.0")
	t.Setenv("port", "9000")
	t.Setenv("loadBalancingStrategy", "latency-aware")

	c := Load()
	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, "latency-aware", c.LoadBalancingStrategy)
}

func TestLoad_ReadsPassthroughSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	c := Load()
	assert.Equal(t, "sk-test", c.AIProviders.OpenAIAPIKey)
}

func TestLoad_InvalidPortFallsBackToDefault(t *testing.T) {
	t.Setenv("port", "not-a-number")
	c := Load()
	assert.Equal(t, defaultPort, c.Port)
}

func TestLoad_ReadsTemplateSeedFile(t *testing.T) {
	t.Setenv("PB_TEMPLATE_SEED_FILE", "/tmp/templates.yaml")
	c := Load()
	assert.Equal(t, "/tmp/templates.yaml", c.TemplateSeedFile)
}
