// Package cliutil holds the command-line plumbing used by
// cmd/cargo-unmaintained: logging setup. The warning sink the
// classification pipeline reports non-fatal errors through is
// internal/auditlog.
package cliutil

import (
	"io"

	"github.com/charmbracelet/log"
)

// NewLogger builds a logger writing to w at level, timestamped the way
// matzehuels-stacktower/internal/cli/log.go configures its own.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}
