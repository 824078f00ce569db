package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mcp-gateway/internal/apierr"
	"mcp-gateway/internal/model"
)

// seedFile is the on-disk shape of a template seed file: a flat list
// of template definitions under a "templates" key, the same shape the
// teacher loads its MCPServer definitions from for local development.
type seedFile struct {
	Templates []model.Template `yaml:"templates"`
}

// LoadSeedFile parses a YAML seed file into templates, for local
// testing/seeding of the registry without a running Configuration
// Manager. path must name a readable file; Seed is the entry point that
// treats an empty path as "nothing to seed".
func LoadSeedFile(path string) ([]model.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.NewInternal("TEMPLATE_SEED_READ_FAILED", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, apierr.NewUnprocessable(fmt.Sprintf("invalid template seed file: %v", err))
	}
	return f.Templates, nil
}

// registerer is the subset of registry.Registry's surface Seed needs,
// kept narrow so this package doesn't import registry.
type registerer interface {
	RegisterTemplate(model.Template) error
}

// Seed loads path (if non-empty) and registers every template it
// contains, skipping any that is missing required transport fields
// rather than failing the whole seed on one bad entry.
func Seed(reg registerer, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	templates, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}

	var registered int
	for _, t := range templates {
		if !IsValid(t) {
			continue
		}
		if err := reg.RegisterTemplate(t); err != nil {
			return registered, err
		}
		registered++
	}
	return registered, nil
}
