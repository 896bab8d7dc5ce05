package cargo

import (
	"context"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cargoaudit/unmaintained/internal/core"
	"github.com/cargoaudit/unmaintained/internal/outdated"
)

// IndexUnavailableError is fatal at startup: the registry index cannot be
// reached and no cached copy exists.
type IndexUnavailableError struct {
	Name string
	Err  error
}

func (e *IndexUnavailableError) Error() string { return "index unavailable: " + e.Err.Error() }
func (e *IndexUnavailableError) Unwrap() error { return e.Err }

// NoSuchPackageError means the name is absent from the index.
type NoSuchPackageError struct {
	Name string
}

func (e *NoSuchPackageError) Error() string { return "no such package: " + e.Name }

// LatestNonYanked implements the Registry Index Reader's primary contract
// (spec.md §4.A): the highest semver-precedence non-yanked version, its
// publish time, and the repository URL declared by the latest registry
// entry (not necessarily the returned version — per spec.md §9b, callers
// that need "the latest entry's repository" should read it directly from
// FetchPackage; this mirrors the crates.io API shape where repository is a
// crate-level, not version-level, field).
func (r *Registry) LatestNonYanked(ctx context.Context, name string) (version string, publishedAt time.Time, repositoryURL string, err error) {
	versions, err := r.FetchVersions(ctx, name)
	if err != nil {
		if nf, ok := err.(*core.NotFoundError); ok && nf != nil {
			return "", time.Time{}, "", &NoSuchPackageError{Name: name}
		}
		return "", time.Time{}, "", &IndexUnavailableError{Name: name, Err: err}
	}
	if len(versions) == 0 {
		return "", time.Time{}, "", &NoSuchPackageError{Name: name}
	}

	type parsed struct {
		v   *semver.Version
		idx int
	}
	var parsedVersions []parsed
	for i, v := range versions {
		if v.Status == core.StatusYanked {
			continue
		}
		sv, err := semver.NewVersion(v.Number)
		if err != nil {
			continue
		}
		parsedVersions = append(parsedVersions, parsed{v: sv, idx: i})
	}
	if len(parsedVersions) == 0 {
		return "", time.Time{}, "", &NoSuchPackageError{Name: name}
	}

	sort.Slice(parsedVersions, func(i, j int) bool {
		return parsedVersions[i].v.GreaterThan(parsedVersions[j].v)
	})

	latest := versions[parsedVersions[0].idx]

	pkg, err := r.FetchPackage(ctx, name)
	repo := ""
	if err == nil {
		repo = pkg.Repository
	}

	return latest.Number, latest.PublishedAt, repo, nil
}

// DirectDependencies returns the Normal+Build direct dependencies declared
// by one specific published version of name, satisfying the Classifier's
// confirmation-pass need (spec.md §4.F step 1, applied to the dependency's
// own latest release rather than the project's installed version) to see
// that release's own requirement ranges instead of the ones resolved for
// the originally installed version.
func (r *Registry) DirectDependencies(ctx context.Context, name, version string) ([]outdated.Direct, error) {
	deps, err := r.FetchDependencies(ctx, name, version)
	if err != nil {
		if nf, ok := err.(*core.NotFoundError); ok && nf != nil {
			return nil, &NoSuchPackageError{Name: name}
		}
		return nil, &IndexUnavailableError{Name: name, Err: err}
	}

	var direct []outdated.Direct
	for _, d := range deps {
		if d.Scope != core.Runtime && d.Scope != core.Build {
			continue
		}
		direct = append(direct, outdated.Direct{Name: d.Name, Required: d.Requirements})
	}
	return direct, nil
}

// AllVersions returns every version of name with its publish timestamp,
// satisfying spec.md §4.A's secondary contract.
func (r *Registry) AllVersions(ctx context.Context, name string) ([]core.Version, error) {
	versions, err := r.FetchVersions(ctx, name)
	if err != nil {
		if nf, ok := err.(*core.NotFoundError); ok && nf != nil {
			return nil, &NoSuchPackageError{Name: name}
		}
		return nil, &IndexUnavailableError{Name: name, Err: err}
	}
	return versions, nil
}
