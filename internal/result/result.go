// Package result implements the Result Sink: it accumulates verdicts from
// the Scheduler, sorts and renders them in human or JSON mode, and computes
// the process exit code.
package result

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/cargoaudit/unmaintained/internal/domain"
)

// ExitCode values per spec.md §6/§8.6.
const (
	ExitClean        = 0
	ExitUnmaintained = 1
	ExitFatal        = 2
)

// outdatedEdgeJSON mirrors spec.md §6's JSON schema for one outdated edge.
type outdatedEdgeJSON struct {
	Dep           string `json:"dep"`
	Req           string `json:"req"`
	Used          string `json:"used"`
	Latest        string `json:"latest"`
	LatestAgeDays uint64 `json:"latest_age_days"`
}

// entryJSON mirrors spec.md §6's per-unmaintained-package JSON object.
type entryJSON struct {
	Name       string             `json:"name"`
	Version    string             `json:"version"`
	Repository *string            `json:"repository"`
	AgeDays    *uint64            `json:"age_days"`
	Reason     string             `json:"reason"`
	Outdated   []outdatedEdgeJSON `json:"outdated,omitempty"`
}

// Report is the Result Sink's accumulated output for one run.
type Report struct {
	Verdicts []domain.Verdict
}

// New creates a Report, sorted per spec.md §4.I's stated key:
// (repository_age_days desc, package_name asc). Entries with an unknown age
// (RepositoryArchived, RepositoryMissing, or no declared repository) sort
// after every aged entry.
func New(verdicts []domain.Verdict) *Report {
	sorted := make([]domain.Verdict, len(verdicts))
	copy(sorted, verdicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := sorted[i].RepoAgeDays, sorted[j].RepoAgeDays
		switch {
		case ai == nil && aj == nil:
			return sorted[i].Package.Name < sorted[j].Package.Name
		case ai == nil:
			return false
		case aj == nil:
			return true
		case *ai != *aj:
			return *ai > *aj
		default:
			return sorted[i].Package.Name < sorted[j].Package.Name
		}
	})
	return &Report{Verdicts: sorted}
}

// Unmaintained returns only the Unmaintained verdicts, in sorted order.
func (r *Report) Unmaintained() []domain.Verdict {
	var out []domain.Verdict
	for _, v := range r.Verdicts {
		if v.Kind == domain.Unmaintained {
			out = append(out, v)
		}
	}
	return out
}

// ExitCode computes the exit code per spec.md §8.6. noExitCode suppresses
// the unmaintained code to ExitClean; a fatal error still yields ExitFatal.
func (r *Report) ExitCode(fatal bool, noExitCode bool) int {
	if fatal {
		return ExitFatal
	}
	if noExitCode {
		return ExitClean
	}
	if len(r.Unmaintained()) > 0 {
		return ExitUnmaintained
	}
	return ExitClean
}

// WriteJSON renders the unmaintained subset as a JSON array matching
// spec.md §6's schema exactly.
func (r *Report) WriteJSON(w io.Writer) error {
	entries := make([]entryJSON, 0, len(r.Verdicts))
	for _, v := range r.Unmaintained() {
		var repo *string
		if v.Repository != "" {
			repo = &v.Repository
		}
		entry := entryJSON{
			Name:       v.Package.Name,
			Version:    v.Package.Version,
			Repository: repo,
			AgeDays:    v.RepoAgeDays,
			Reason:     v.Reason.String(),
		}
		for _, e := range v.Outdated {
			entry.Outdated = append(entry.Outdated, outdatedEdgeJSON{
				Dep: e.Dep, Req: e.Required, Used: e.Used,
				Latest: e.Latest, LatestAgeDays: e.LatestAgeDays,
			})
		}
		entries = append(entries, entry)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// ageColor reproduces the yellow-to-red age gradient of
// original_source/src/repo_status.rs's color() method: fresher ages render
// closer to yellow, staler ages closer to red.
func ageColor(ageDays uint64) lipgloss.Color {
	const capDays = 365 * 3
	t := float64(ageDays) / float64(capDays)
	if t > 1 {
		t = 1
	}
	red := 255
	green := int(220 * (1 - t))
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", red, green, 40))
}

var (
	nameStyle   = lipgloss.NewStyle().Bold(true)
	reasonStyle = lipgloss.NewStyle().Faint(true)
)

// WriteHuman renders the unmaintained subset as a colored, human-readable
// report.
func (r *Report) WriteHuman(w io.Writer) error {
	unmaintained := r.Unmaintained()
	if len(unmaintained) == 0 {
		fmt.Fprintln(w, "no unmaintained dependencies found")
		return nil
	}

	for _, v := range unmaintained {
		age := "unknown"
		style := lipgloss.NewStyle()
		if v.RepoAgeDays != nil {
			age = fmt.Sprintf("%dd", *v.RepoAgeDays)
			style = lipgloss.NewStyle().Foreground(ageColor(*v.RepoAgeDays))
		}

		line := fmt.Sprintf("%s %s  repo-age=%s  %s",
			nameStyle.Render(v.Package.Name),
			v.Package.Version,
			style.Render(age),
			reasonStyle.Render(v.Reason.String()),
		)
		fmt.Fprintln(w, line)

		if v.Repository != "" {
			fmt.Fprintf(w, "  %s\n", v.Repository)
		}
		for _, e := range v.Outdated {
			fmt.Fprintf(w, "  %s: requires %s, have %s, latest %s (%dd old)\n",
				e.Dep, e.Required, e.Used, e.Latest, e.LatestAgeDays)
		}
	}
	return nil
}
