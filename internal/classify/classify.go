// Package classify implements the Classifier: the seven-rule, first-match
// decision procedure (spec.md §4.G) that turns one candidate package plus
// its repository evidence into a Verdict, together with the confirmation
// pass that re-checks any provisional Unmaintained verdict against the
// dependency's own latest release before it is trusted.
package classify

import (
	"context"
	"time"

	"github.com/cargoaudit/unmaintained/internal/archival"
	"github.com/cargoaudit/unmaintained/internal/domain"
	"github.com/cargoaudit/unmaintained/internal/outdated"
)

// notFounder is satisfied by gitrepo.CloneFailedError without importing
// that package; any materializer error that means "repository absent"
// should implement it.
type notFounder interface {
	IsNotFound() bool
}

// RepoMaterializer clones or reuses a repository handle. internal/gitrepo.
// Store satisfies this.
type RepoMaterializer interface {
	Materialize(ctx context.Context, url string) (*domain.RepoHandle, error)
}

// CommitTimer answers the age question for a materialized handle.
// internal/gitrepo.Store satisfies this.
type CommitTimer interface {
	LastCommitTime(ctx context.Context, h *domain.RepoHandle) (time.Time, error)
}

// ArchivalChecker answers whether a repository URL is archived.
// internal/archival.Oracle satisfies this.
type ArchivalChecker interface {
	Archived(ctx context.Context, url string) (archival.Status, error)
}

// MembershipChecker answers whether a handle's tree declares pkgName.
// internal/membership.Checker satisfies this.
type MembershipChecker interface {
	Contains(ctx context.Context, h *domain.RepoHandle, pkgName string) (bool, error)
}

// OutdatedAnalyzer computes the outdated direct-dependency edges of a
// candidate. internal/outdated.Analyzer satisfies this.
type OutdatedAnalyzer interface {
	OutdatedEdges(ctx context.Context, deps []outdated.Direct) ([]domain.OutdatedEdge, error)
}

// LatestLookup resolves the latest non-yanked release of a crate, used by
// the confirmation pass. internal/cargo's adapter satisfies this.
type LatestLookup interface {
	LatestNonYanked(ctx context.Context, name string) (version string, publishedAt time.Time, repositoryURL string, err error)
}

// DependencyFetcher resolves the direct Normal+Build dependencies declared
// by one specific published version of a package. The confirmation pass
// uses this to check the latest release's own requirement ranges, since
// they can differ from the ones resolved for the project's installed
// version. internal/cargo's adapter satisfies this.
type DependencyFetcher interface {
	DirectDependencies(ctx context.Context, name, version string) ([]outdated.Direct, error)
}

// Candidate is one package up for classification, together with the
// evidence the Metadata Loader has already resolved for it.
type Candidate struct {
	Package        domain.Package
	RepositoryURL  string            // "" if the registry entry declares none
	Deps           []outdated.Direct // direct Normal+Build dependency edges
}

// Classifier wires the four evidence-gathering components into the
// decision procedure.
type Classifier struct {
	store      RepoMaterializer
	commits    CommitTimer
	archival   ArchivalChecker
	membership MembershipChecker
	outdated   OutdatedAnalyzer
	latest     LatestLookup
	deps       DependencyFetcher
	maxAge     time.Duration
	ignore     map[string]bool
	now        func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithIgnoreList excludes the named packages before classification runs;
// they are reported Skipped(Ignored).
func WithIgnoreList(names []string) Option {
	return func(c *Classifier) {
		for _, n := range names {
			c.ignore[n] = true
		}
	}
}

// New creates a Classifier. maxAge is Config.MaxAgeDays converted to a
// duration. deps may be nil, in which case the confirmation pass falls back
// to the candidate's originally resolved dependency set.
func New(store RepoMaterializer, commits CommitTimer, arch ArchivalChecker, membership MembershipChecker, outdatedAnalyzer OutdatedAnalyzer, latest LatestLookup, deps DependencyFetcher, maxAge time.Duration, opts ...Option) *Classifier {
	c := &Classifier{
		store:      store,
		commits:    commits,
		archival:   arch,
		membership: membership,
		outdated:   outdatedAnalyzer,
		latest:     latest,
		deps:       deps,
		maxAge:     maxAge,
		ignore:     make(map[string]bool),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify runs the ignore-list pass followed by the seven-rule decision
// procedure for one candidate.
func (c *Classifier) Classify(ctx context.Context, cand Candidate) (domain.Verdict, error) {
	if c.ignore[cand.Package.Name] {
		return domain.Verdict{Package: cand.Package, Kind: domain.Skipped, SkipWhy: domain.SkipIgnored}, nil
	}
	return c.classify(ctx, cand, false)
}

// classify implements rules 1-7. confirming is true while re-running the
// procedure against a later version during the confirmation pass, which
// disables re-entering the confirmation pass itself (bounded to depth 1).
func (c *Classifier) classify(ctx context.Context, cand Candidate, confirming bool) (domain.Verdict, error) {
	v := domain.Verdict{Package: cand.Package, Repository: cand.RepositoryURL}

	if cand.RepositoryURL == "" {
		// Rule 1: no declared repository. There is no archival bit and no
		// tree to check membership against, so repo age is treated as
		// infinite and only the leaf/outdated rules (5-7) still apply.
		return c.finishLeafAndOutdated(ctx, cand, v, nil, confirming)
	}

	status, err := c.archival.Archived(ctx, cand.RepositoryURL)
	if err == nil && status == archival.Yes {
		v.Kind = domain.Unmaintained
		v.Reason = domain.RepositoryArchived
		return c.confirmUnlessConfirming(ctx, cand, v, confirming)
	}

	handle, err := c.store.Materialize(ctx, cand.RepositoryURL)
	if err != nil {
		if nf, ok := err.(notFounder); ok && nf.IsNotFound() {
			v.Kind = domain.Unmaintained
			v.Reason = domain.RepositoryMissing
			return c.confirmUnlessConfirming(ctx, cand, v, confirming)
		}
		return domain.Verdict{}, err
	}

	commitTime, err := c.commits.LastCommitTime(ctx, handle)
	if err != nil {
		return domain.Verdict{}, err
	}
	ageDays := uint64(c.now().Sub(commitTime).Hours() / 24)

	contains, err := c.membership.Contains(ctx, handle, cand.Package.Name)
	if err != nil {
		return domain.Verdict{}, err
	}
	if !contains {
		v.Kind = domain.Unmaintained
		v.Reason = domain.NotInNamedRepository
		v.RepoAgeDays = &ageDays
		return c.confirmUnlessConfirming(ctx, cand, v, confirming)
	}

	return c.finishLeafAndOutdated(ctx, cand, v, &ageDays, confirming)
}

// confirmUnlessConfirming runs the confirmation pass over a provisional
// Unmaintained verdict, for any of the four Reason values spec.md §4.G
// names (RepositoryArchived, RepositoryMissing, NotInNamedRepository, and
// OutdatedAndStale, the last via finishLeafAndOutdated). confirming being
// true means this verdict is itself the result of a confirmation re-run,
// so the pass is not re-entered (bounded to depth 1).
func (c *Classifier) confirmUnlessConfirming(ctx context.Context, cand Candidate, v domain.Verdict, confirming bool) (domain.Verdict, error) {
	if confirming {
		return v, nil
	}
	return c.confirm(ctx, cand, v)
}

// finishLeafAndOutdated implements rules 5-7: the leaf rule, the
// within-max-age rule, and the outdated-edges rule, in that order.
func (c *Classifier) finishLeafAndOutdated(ctx context.Context, cand Candidate, v domain.Verdict, ageDays *uint64, confirming bool) (domain.Verdict, error) {
	v.RepoAgeDays = ageDays

	if len(cand.Deps) == 0 {
		v.Kind = domain.Maintained
		return v, nil
	}

	if ageDays != nil {
		maxAgeDays := uint64(c.maxAge.Hours() / 24)
		if *ageDays <= maxAgeDays {
			v.Kind = domain.Maintained
			return v, nil
		}
	}

	edges, err := c.outdated.OutdatedEdges(ctx, cand.Deps)
	if err != nil {
		return domain.Verdict{}, err
	}
	if len(edges) == 0 {
		v.Kind = domain.Maintained
		return v, nil
	}

	v.Kind = domain.Unmaintained
	v.Reason = domain.OutdatedAndStale
	v.Outdated = edges

	return c.confirmUnlessConfirming(ctx, cand, v, confirming)
}

// confirm re-runs the decision procedure against the latest non-yanked
// release of the candidate. If that re-run comes back Maintained, the
// provisional verdict is downgraded to Skipped(LatestIsFine): the
// candidate's *installed* version looks unmaintained only because the
// project hasn't upgraded yet, not because upstream has stopped.
func (c *Classifier) confirm(ctx context.Context, cand Candidate, provisional domain.Verdict) (domain.Verdict, error) {
	if c.latest == nil {
		return provisional, nil
	}

	latestVersion, _, latestRepo, err := c.latest.LatestNonYanked(ctx, cand.Package.Name)
	if err != nil || latestVersion == "" || latestVersion == cand.Package.Version {
		return provisional, nil
	}

	confirmCand := cand
	confirmCand.Package.Version = latestVersion
	if latestRepo != "" {
		confirmCand.RepositoryURL = latestRepo
	}
	if c.deps != nil {
		if latestDeps, err := c.deps.DirectDependencies(ctx, cand.Package.Name, latestVersion); err == nil {
			confirmCand.Deps = latestDeps
		}
		// A fetch failure here leaves confirmCand.Deps at the installed
		// version's edges rather than aborting the confirmation pass.
	}

	confirmed, err := c.classify(ctx, confirmCand, true)
	if err != nil {
		return provisional, nil
	}

	if confirmed.Kind == domain.Maintained {
		provisional.Kind = domain.Skipped
		provisional.SkipWhy = domain.SkipLatestIsFine
		provisional.Reason = domain.ReasonNone
	}
	return provisional, nil
}
