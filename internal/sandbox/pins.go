package sandbox

import "fmt"

// pinnedVersions fixes the exact release installed for each runtime,
// so a sandbox install is reproducible across machines rather than
// tracking a moving "latest" target.
const (
	nodeVersion   = "20.11.1"
	goVersion     = "1.22.1"
	pythonVersion = "3.11.7"
	pythonBuild   = "20240107"
)

// nodePlatforms/goPlatforms/pythonPlatforms map GOOS/GOARCH onto each
// upstream project's own platform-naming convention, since none of the
// three agree with each other or with Go's runtime constants.
var nodePlatforms = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-arm64",
	"darwin/amd64": "darwin-x64",
	"darwin/arm64": "darwin-arm64",
}

var goPlatforms = map[string]string{
	"linux/amd64":  "linux-amd64",
	"linux/arm64":  "linux-arm64",
	"darwin/amd64": "darwin-amd64",
	"darwin/arm64": "darwin-arm64",
}

var pythonPlatforms = map[string]string{
	"linux/amd64":  "x86_64-unknown-linux-gnu",
	"linux/arm64":  "aarch64-unknown-linux-gnu",
	"darwin/amd64": "x86_64-apple-darwin",
	"darwin/arm64": "aarch64-apple-darwin",
}

// DefaultPinTable returns the gateway's built-in platform x arch
// download table for node/go/python (§4.8 step 3). Entries outside this
// matrix (e.g. windows) have no pin and Install reports UNPROCESSABLE
// for them, same as an empty table.
func DefaultPinTable() PinTable {
	pins := PinTable{}
	for goosArch, plat := range nodePlatforms {
		pins[fmt.Sprintf("node/%s", goosArch)] = DownloadSpec{
			URL:      fmt.Sprintf("https://nodejs.org/dist/v%s/node-v%s-%s.tar.gz", nodeVersion, nodeVersion, plat),
			Filename: fmt.Sprintf("node-v%s-%s.tar.gz", nodeVersion, plat),
		}
	}
	for goosArch, plat := range goPlatforms {
		pins[fmt.Sprintf("go/%s", goosArch)] = DownloadSpec{
			URL:      fmt.Sprintf("https://go.dev/dl/go%s.%s.tar.gz", goVersion, plat),
			Filename: fmt.Sprintf("go%s.%s.tar.gz", goVersion, plat),
		}
	}
	for goosArch, plat := range pythonPlatforms {
		filename := fmt.Sprintf("cpython-%s+%s-%s-install_only.tar.gz", pythonVersion, pythonBuild, plat)
		pins[fmt.Sprintf("python/%s", goosArch)] = DownloadSpec{
			URL:      fmt.Sprintf("https://github.com/indygreg/python-build-standalone/releases/download/%s/%s", pythonBuild, filename),
			Filename: filename,
		}
	}
	return pins
}

// ApplyChecksums overlays SHA-256 hashes supplied via config
// (PB_RUNTIME_SHA256_NODE/_PYTHON/_GO) onto every platform entry for
// that component, since a single build is typically pinned for the
// platform the gateway is deployed to, not verified per architecture.
func (pins PinTable) ApplyChecksums(node, python, goSHA string) PinTable {
	for key, spec := range pins {
		switch {
		case node != "" && hasComponentPrefix(key, ComponentNode):
			spec.SHA256 = node
		case python != "" && hasComponentPrefix(key, ComponentPython):
			spec.SHA256 = python
		case goSHA != "" && hasComponentPrefix(key, ComponentGo):
			spec.SHA256 = goSHA
		default:
			continue
		}
		pins[key] = spec
	}
	return pins
}

func hasComponentPrefix(key string, c Component) bool {
	prefix := string(c) + "/"
	return len(key) > len(prefix) && key[:len(prefix)] == prefix
}
