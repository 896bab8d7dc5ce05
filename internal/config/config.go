// Package config defines the input contracts the classification core is
// invoked with: the resolved project context and the run configuration.
package config

// Mode selects the Result Sink's output rendering.
type Mode int

const (
	Human Mode = iota
	JSON
)

// ProjectContext is the resolved view of the project being audited: the
// manifest path, the workspace members, and the configured ignore list.
// cmd/cargo-unmaintained does not build one; it passes these values to the
// components directly.
type ProjectContext struct {
	ManifestPath     string
	WorkspaceMembers []string
	Ignore           []string
}

// Config carries the run-time options the core needs. Defaults mirror
// spec.md §6.
type Config struct {
	MaxAgeDays   uint32 // default 365
	FailFast     bool
	UseCache     bool // default true
	NoExitCode   bool
	GithubToken  string
	Mode         Mode
	CacheRoot    string // resolved cache root; empty uses the platform default
	Ignore       []string
}

// DefaultConfig returns a Config with spec.md §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxAgeDays: 365,
		UseCache:   true,
		Mode:       Human,
	}
}
