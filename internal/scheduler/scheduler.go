// Package scheduler fans a project's resolved dependency graph out to the
// Classifier: deriving the candidate set, deduplicating concurrent
// repository materializations for the same URL, bounding concurrency, and
// propagating --fail-fast cancellation.
package scheduler

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cargoaudit/unmaintained/internal/classify"
	"github.com/cargoaudit/unmaintained/internal/domain"
	"github.com/cargoaudit/unmaintained/internal/gitrepo"
	"github.com/cargoaudit/unmaintained/internal/manifest"
	"github.com/cargoaudit/unmaintained/internal/outdated"
)

const defaultConcurrency = 15

// PerCallTimeout bounds the registry lookup each classification job makes
// before calling the Classifier (spec.md §5's 60-second ceiling). The
// Classifier's own calls run on the job's cancellable context without it.
const PerCallTimeout = 60 * time.Second

// DedupMaterializer wraps a classify.RepoMaterializer so that concurrent
// callers requesting the same normalized repository URL share a single
// in-flight Materialize call, per spec.md §4.H/§5.
type DedupMaterializer struct {
	inner classify.RepoMaterializer
	group singleflight.Group
}

// NewDedupMaterializer wraps inner with per-URL in-flight deduplication.
func NewDedupMaterializer(inner classify.RepoMaterializer) *DedupMaterializer {
	return &DedupMaterializer{inner: inner}
}

func (d *DedupMaterializer) Materialize(ctx context.Context, url string) (*domain.RepoHandle, error) {
	key := gitrepo.Normalize(url)
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		return d.inner.Materialize(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.RepoHandle), nil
}

// cacheProber is satisfied by internal/gitrepo.Store's read-only fast path.
type cacheProber interface {
	MaterializeCached(ctx context.Context, url string) (*domain.RepoHandle, error)
}

// MaterializeCached forwards to inner's cache-only probe, if it has one,
// bypassing the singleflight group: the probe neither clones nor writes, so
// concurrent callers don't need to be deduplicated the way concurrent
// clones do. It lets diskcache.Guard run the common cache-hit path under
// only a shared lock. Returns gitrepo.ErrCacheMiss if inner has no such
// probe, which Guard treats the same as an actual cache miss.
func (d *DedupMaterializer) MaterializeCached(ctx context.Context, url string) (*domain.RepoHandle, error) {
	prober, ok := d.inner.(cacheProber)
	if !ok {
		return nil, gitrepo.ErrCacheMiss
	}
	return prober.MaterializeCached(ctx, url)
}

// RepositoryResolver resolves the repository URL a candidate package should
// be classified against: the URL declared by its latest non-yanked registry
// entry, per the "conflicting repository_url across versions" resolution
// (always the latest version's URL, never the installed version's).
type RepositoryResolver interface {
	LatestNonYanked(ctx context.Context, name string) (version string, publishedAt time.Time, repositoryURL string, err error)
}

// candidatePackage is one non-workspace, CratesIo-sourced package from the
// resolved graph, together with its direct Normal+Build dependency edges.
type candidatePackage struct {
	pkg  domain.Package
	deps []outdated.Direct
}

// DeriveCandidates implements spec.md §4.H's candidate-set rule: every
// CratesIo-sourced package in the graph, minus workspace members, with its
// direct Normal+Build dependency edges attached (Dev edges never contribute
// to the leaf rule or the Outdatedness Analyzer).
func DeriveCandidates(graph *manifest.Graph) []candidatePackage {
	isMember := make(map[string]bool, len(graph.WorkspaceMembers))
	for _, m := range graph.WorkspaceMembers {
		isMember[m] = true
	}

	depsByParent := make(map[string][]outdated.Direct)
	for _, e := range graph.Edges {
		if e.Kind == domain.Dev {
			continue
		}
		depsByParent[e.Parent.Name] = append(depsByParent[e.Parent.Name], outdated.Direct{
			Name:     e.Child.Name,
			Required: e.Requirement,
			Used:     e.Child.Version,
		})
	}

	var out []candidatePackage
	seen := make(map[string]bool)
	for _, p := range graph.Packages {
		if p.Source.Kind != domain.CratesIo {
			continue
		}
		if isMember[p.Name] || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, candidatePackage{pkg: p, deps: depsByParent[p.Name]})
	}
	return out
}

// Scheduler runs the Classifier over a bounded pool of concurrent workers.
type Scheduler struct {
	classifier  *classify.Classifier
	resolver    RepositoryResolver
	concurrency int
	failFast    bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency overrides the default worker pool size.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = n }
}

// WithFailFast cancels every in-flight and queued job as soon as one
// candidate classifies Unmaintained (spec.md §4.H/§5), not merely on the
// first infrastructure error.
func WithFailFast() Option {
	return func(s *Scheduler) { s.failFast = true }
}

// New creates a Scheduler. resolver supplies each candidate's repository
// URL before classification (internal/cargo's registry adapter).
func New(classifier *classify.Classifier, resolver RepositoryResolver, opts ...Option) *Scheduler {
	s := &Scheduler{classifier: classifier, resolver: resolver, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run classifies every candidate derived from graph and returns one Verdict
// per candidate, in the same order DeriveCandidates produced them.
func (s *Scheduler) Run(ctx context.Context, graph *manifest.Graph) ([]domain.Verdict, error) {
	candidates := DeriveCandidates(graph)
	verdicts := make([]domain.Verdict, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	// foundCtx is cancelled the moment --fail-fast sees its first
	// Unmaintained verdict, independently of gctx's own cancellation on a
	// genuine worker error. Every in-flight and queued job observes it at
	// its next suspension point and abandons its work.
	foundCtx, cancelFound := context.WithCancel(gctx)
	defer cancelFound()

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(foundCtx, PerCallTimeout)
			defer cancel()

			_, _, repoURL, err := s.resolver.LatestNonYanked(callCtx, cand.pkg.Name)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				verdicts[i] = domain.Verdict{Package: cand.pkg, Kind: domain.Skipped, SkipWhy: domain.SkipLookupFailed}
				return nil
			}

			v, err := s.classifier.Classify(foundCtx, classify.Candidate{
				Package:       cand.pkg,
				RepositoryURL: repoURL,
				Deps:          cand.deps,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if s.failFast {
					return err
				}
				verdicts[i] = domain.Verdict{Package: cand.pkg, Kind: domain.Skipped, SkipWhy: domain.SkipLookupFailed}
				return nil
			}
			verdicts[i] = v
			if s.failFast && v.Kind == domain.Unmaintained {
				cancelFound()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}
