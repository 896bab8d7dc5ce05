// Package membership implements the Repository Membership Checker: given a
// package name and a materialized repository handle, it decides whether
// the repository's tree declares a Cargo.toml with that package name.
package membership

import (
	"context"

	"github.com/cargoaudit/unmaintained/internal/domain"
	"github.com/cargoaudit/unmaintained/internal/manifest"
)

// Warner receives non-fatal warnings (per-manifest parse failures).
type Warner func(key, msg string)

// ManifestLister reads manifest paths and content from a materialized
// repository. internal/gitrepo.Store satisfies this.
type ManifestLister interface {
	ListManifests(ctx context.Context, h *domain.RepoHandle) ([]string, error)
	ReadManifest(ctx context.Context, h *domain.RepoHandle, treePath string) ([]byte, error)
}

// Checker decides repository membership.
type Checker struct {
	store ManifestLister
	warn  Warner
}

// New creates a Checker. warn may be nil to discard warnings.
func New(store ManifestLister, warn Warner) *Checker {
	if warn == nil {
		warn = func(string, string) {}
	}
	return &Checker{store: store, warn: warn}
}

// Contains scans every manifest reachable from handle's default-branch tree
// and returns true iff some manifest declares package.name == pkgName.
// Non-UTF-8 manifests or individual parse failures are skipped with a
// warning, never failing the check. Virtual handles (non-git hosts such as
// Mercurial) are treated as membership-satisfied per spec.md §4.E.
func (c *Checker) Contains(ctx context.Context, handle *domain.RepoHandle, pkgName string) (bool, error) {
	if handle.Virtual {
		return true, nil
	}

	paths, err := c.store.ListManifests(ctx, handle)
	if err != nil {
		return false, err
	}

	for _, path := range paths {
		data, err := c.store.ReadManifest(ctx, handle, path)
		if err != nil {
			c.warn(path, "failed to read manifest: "+err.Error())
			continue
		}

		name, err := manifest.ParsePackageName(data)
		if err != nil {
			c.warn(path, "failed to parse manifest: "+err.Error())
			continue
		}

		if name == pkgName {
			return true, nil
		}
	}

	return false, nil
}
