// Package auditlog wraps a structured logger as the warning sink the
// classification pipeline reports non-fatal per-package and per-manifest
// failures through (spec.md §7: "all warnings carry a package or URL key").
package auditlog

import "github.com/charmbracelet/log"

// Sink adapts a *log.Logger to the (key, msg string) warning signature
// internal/membership.Warner and the other components expect.
type Sink struct {
	logger *log.Logger
}

// New creates a Sink writing through logger.
func New(logger *log.Logger) *Sink {
	return &Sink{logger: logger}
}

// Warn logs msg at warning level with key attached as a structured field.
func (s *Sink) Warn(key, msg string) {
	s.logger.Warn(msg, "key", key)
}
