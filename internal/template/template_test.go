package template

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mcp-gateway/internal/model"
)

func TestDiagnose_StdioRequiresCommand(t *testing.T) {
	d := Diagnose(model.Template{Transport: model.TransportStdio})
	assert.Equal(t, []string{"command"}, d.Required)
	assert.Equal(t, []string{"command"}, d.Missing)
	assert.False(t, IsValid(model.Template{Transport: model.TransportStdio}))
}

func TestDiagnose_StdioWithCommandIsValid(t *testing.T) {
	tpl := model.Template{Transport: model.TransportStdio, Command: "npx"}
	d := Diagnose(tpl)
	assert.Empty(t, d.Missing)
	assert.True(t, IsValid(tpl))
}

func TestDiagnose_HTTPRequiresEndpoint(t *testing.T) {
	tpl := model.Template{Transport: model.TransportHTTP}
	assert.Equal(t, []string{"endpoint"}, Diagnose(tpl).Missing)

	tpl.Endpoint = "https://example.com/mcp"
	assert.Empty(t, Diagnose(tpl).Missing)
}

func TestDiagnose_StreamableHTTPRequiresEndpoint(t *testing.T) {
	tpl := model.Template{Transport: model.TransportStreamableHTTP, Endpoint: "https://example.com"}
	assert.True(t, IsValid(tpl))
}

func TestQualifyImage(t *testing.T) {
	cases := map[string]string{
		"redis":              "docker.io/library/redis:latest",
		"redis:7":            "docker.io/library/redis:7",
		"library/redis":      "library/redis:latest",
		"ghcr.io/foo/bar":    "ghcr.io/foo/bar:latest",
		"ghcr.io/foo/bar:v1": "ghcr.io/foo/bar:v1",
	}
	for in, want := range cases {
		assert.Equal(t, want, qualifyImage(in), "input %q", in)
	}
}

func TestRepairImages_FixesOnlyUnqualifiedImages(t *testing.T) {
	templates := []model.Template{
		{Name: "a", Container: &model.ContainerSpec{Image: "redis"}},
		{Name: "b", Container: &model.ContainerSpec{Image: "ghcr.io/foo/bar:v1"}},
		{Name: "c"},
	}

	repaired, result := RepairImages(templates)

	assert.Equal(t, 1, result.Fixed)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, "docker.io/library/redis:latest", repaired[0].Container.Image)
	assert.Equal(t, "ghcr.io/foo/bar:v1", repaired[1].Container.Image)
	assert.Nil(t, repaired[2].Container)

	// original slice elements are untouched
	assert.Equal(t, "redis", templates[0].Container.Image)
}
