// Package template validates and repairs Service Registry templates:
// diagnosing missing required fields against what a template's transport
// requires, and mechanically fixing common defects (repair,
// repair-images). Field-level validation follows an accumulate-and-report
// style (ValidateRequired/ValidateOneOf helpers), adapted here from
// config-file entity validation into template diagnostics.
package template

import (
	"strings"

	"mcp-gateway/internal/model"
)

// Diagnosis is the result of validating one template against its own
// declared transport requirements (§6 POST .../diagnose).
type Diagnosis struct {
	Required  []string `json:"required"`
	Provided  []string `json:"provided"`
	Missing   []string `json:"missing"`
	Transport string   `json:"transport"`
}

// requiredFieldsFor returns the field names a template must supply for
// its transport, independent of whatever it actually has set.
func requiredFieldsFor(transport model.TransportKind) []string {
	switch transport {
	case model.TransportStdio:
		return []string{"command"}
	case model.TransportHTTP, model.TransportStreamableHTTP:
		return []string{"endpoint"}
	default:
		return nil
	}
}

func providedFields(t model.Template) []string {
	var out []string
	if t.Command != "" {
		out = append(out, "command")
	}
	if t.Endpoint != "" {
		out = append(out, "endpoint")
	}
	if len(t.Args) > 0 {
		out = append(out, "args")
	}
	if len(t.Env) > 0 {
		out = append(out, "env")
	}
	if t.Container != nil {
		out = append(out, "container")
	}
	return out
}

// Diagnose reports which of a template's transport-required fields are
// actually set.
func Diagnose(t model.Template) Diagnosis {
	required := requiredFieldsFor(t.Transport)
	provided := providedFields(t)

	providedSet := make(map[string]bool, len(provided))
	for _, f := range provided {
		providedSet[f] = true
	}

	var missing []string
	for _, f := range required {
		if !providedSet[f] {
			missing = append(missing, f)
		}
	}

	return Diagnosis{
		Required:  required,
		Provided:  provided,
		Missing:   missing,
		Transport: string(t.Transport),
	}
}

// IsValid reports whether a template has every field its transport requires.
func IsValid(t model.Template) bool {
	return len(Diagnose(t).Missing) == 0
}

// RepairResult counts fixes applied by Repair/RepairImages.
type RepairResult struct {
	Fixed   int `json:"fixed"`
	Updated int `json:"updated"`
}

// defaultRegistry qualifies an unqualified image the way common
// container defaults do: no registry host and no explicit tag implies
// "docker.io/library/<name>:latest".
const defaultRegistry = "docker.io/library/"
const defaultTag = ":latest"

// needsRegistryQualifier reports whether image lacks a registry or
// namespace component (a "/" before the first ":"), whether or not it
// carries a tag.
func needsRegistryQualifier(image string) bool {
	if image == "" {
		return false
	}
	slash := strings.Index(image, "/")
	colon := strings.Index(image, ":")
	hasRegistry := slash >= 0 && (colon < 0 || slash < colon)
	return !hasRegistry
}

func needsTag(image string) bool {
	// A tag is any ':' appearing after the last '/'.
	lastSlash := strings.LastIndex(image, "/")
	rest := image[lastSlash+1:]
	return !strings.Contains(rest, ":")
}

// qualifyImage rewrites an unqualified image reference into a
// default-qualified one, leaving already-qualified references alone.
func qualifyImage(image string) string {
	out := image
	if needsRegistryQualifier(out) {
		out = defaultRegistry + out
	}
	if needsTag(out) {
		out += defaultTag
	}
	return out
}

// RepairImages rewrites any container.image missing a registry/tag
// qualifier in place, returning how many templates were touched.
func RepairImages(templates []model.Template) ([]model.Template, RepairResult) {
	var res RepairResult
	out := make([]model.Template, len(templates))
	for i, t := range templates {
		out[i] = t
		if t.Container == nil || t.Container.Image == "" {
			continue
		}
		qualified := qualifyImage(t.Container.Image)
		if qualified != t.Container.Image {
			fixed := *t.Container
			fixed.Image = qualified
			out[i].Container = &fixed
			res.Updated++
			res.Fixed++
		}
	}
	return out, res
}
