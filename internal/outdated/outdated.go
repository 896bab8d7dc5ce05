// Package outdated implements the Outdatedness Analyzer: for a candidate
// package, it computes the direct dependencies whose declared requirement
// rejects the latest published version of that dependency, filtered by a
// minimum staleness window on that latest version.
package outdated

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cargoaudit/unmaintained/internal/domain"
)

// LatestLookup resolves the latest non-yanked version of a dependency name,
// along with when it was published. internal/cargo's Registry Index Reader
// satisfies this through an adapter.
type LatestLookup interface {
	LatestNonYanked(ctx context.Context, name string) (version string, publishedAt time.Time, repositoryURL string, err error)
}

// Analyzer computes outdated edges per spec.md §4.F.
type Analyzer struct {
	lookup  LatestLookup
	maxAge  time.Duration
	now     func() time.Time
}

// New creates an Analyzer. maxAge is the configured staleness window
// (Config.MaxAgeDays converted to a duration).
func New(lookup LatestLookup, maxAge time.Duration) *Analyzer {
	return &Analyzer{lookup: lookup, maxAge: maxAge, now: time.Now}
}

// Direct is one direct dependency edge of the candidate package, as
// resolved in the user's dependency graph.
type Direct struct {
	Name     string
	Required string // the requirement range declared by the candidate
	Used     string // the version actually resolved in the graph
}

// OutdatedEdges implements the four-step algorithm of spec.md §4.F over a
// candidate's direct Normal+Build dependencies.
func (a *Analyzer) OutdatedEdges(ctx context.Context, deps []Direct) ([]domain.OutdatedEdge, error) {
	var edges []domain.OutdatedEdge

	seen := make(map[string]bool) // dedup by name+req per spec.md's lib.rs grounding
	for _, d := range deps {
		key := d.Name + "@" + d.Required
		if seen[key] {
			continue
		}
		seen[key] = true

		latest, publishedAt, _, err := a.lookup.LatestNonYanked(ctx, d.Name)
		if err != nil {
			// A transient lookup failure for one dependency does not fail
			// the whole analysis; the edge is simply not flagged.
			continue
		}

		constraint, err := semver.NewConstraint(d.Required)
		if err != nil {
			continue
		}
		latestVer, err := semver.NewVersion(latest)
		if err != nil {
			continue
		}

		if constraint.Check(latestVer) {
			// in date
			continue
		}

		age := a.now().Sub(publishedAt)
		if age < a.maxAge {
			// the incompatible upgrade is too recent
			continue
		}

		edges = append(edges, domain.OutdatedEdge{
			Dep:           d.Name,
			Required:      d.Required,
			Used:          d.Used,
			Latest:        latest,
			LatestAgeDays: uint64(age.Hours() / 24),
		})
	}

	return edges, nil
}
