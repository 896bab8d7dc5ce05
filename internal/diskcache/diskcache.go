// Package diskcache implements the Cache Coordinator: the on-disk cache
// layout under a configured root, and the cross-process advisory lock that
// serializes writers against the cache root while letting readers proceed
// concurrently.
package diskcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/cargoaudit/unmaintained/internal/domain"
	"github.com/cargoaudit/unmaintained/internal/gitrepo"
)

// CacheLockFailedError is returned when the cache-root lock cannot be
// acquired within the configured wait budget.
type CacheLockFailedError struct {
	Root string
	Err  error
}

func (e *CacheLockFailedError) Error() string {
	return fmt.Sprintf("acquiring cache lock at %s: %v", e.Root, e.Err)
}
func (e *CacheLockFailedError) Unwrap() error { return e.Err }

// Coordinator owns the on-disk cache layout (spec.md §6):
//
//	<root>/repos/<sha1>/      bare git mirrors
//	<root>/repos/<sha1>.ok    clone-complete sentinels
//	<root>/index/             registry index mirror, reserved for 4.A
//	<root>/lock               cache-root advisory lock file
type Coordinator struct {
	root     string
	useCache bool
	lock     *flock.Flock
}

// New creates a Coordinator rooted at root. useCache false makes Bypass
// report true, which callers use to skip the cache entirely rather than
// reading or writing it (--no-cache).
func New(root string, useCache bool) *Coordinator {
	return &Coordinator{
		root:     root,
		useCache: useCache,
		lock:     flock.New(filepath.Join(root, "lock")),
	}
}

// Bypass reports whether the cache should be skipped entirely.
func (c *Coordinator) Bypass() bool { return !c.useCache }

// ReposDir is the directory bare repository mirrors are cloned into.
func (c *Coordinator) ReposDir() string { return filepath.Join(c.root, "repos") }

// IndexDir is the directory reserved for a local registry-index mirror.
func (c *Coordinator) IndexDir() string { return filepath.Join(c.root, "index") }

// Ensure creates the cache-root directory layout if it does not exist.
func (c *Coordinator) Ensure() error {
	for _, dir := range []string{c.root, c.ReposDir(), c.IndexDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// WithExclusive runs fn while holding an exclusive cache-root lock, used
// around writers (clones, sentinel creation). Bypassed entirely when the
// cache is disabled.
func (c *Coordinator) WithExclusive(ctx context.Context, fn func() error) error {
	if c.Bypass() {
		return fn()
	}
	if err := c.Ensure(); err != nil {
		return err
	}

	locked, err := c.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return &CacheLockFailedError{Root: c.root, Err: err}
	}
	if !locked {
		return &CacheLockFailedError{Root: c.root, Err: ctx.Err()}
	}
	defer c.lock.Unlock()

	return fn()
}

// Materializer is satisfied by internal/gitrepo.Store and by
// internal/scheduler.DedupMaterializer.
type Materializer interface {
	Materialize(ctx context.Context, url string) (*domain.RepoHandle, error)
}

// CachedMaterializer is a Materializer that can also answer, without
// cloning or writing anything, whether it already holds a cached mirror
// for a URL. internal/gitrepo.Store and internal/scheduler.DedupMaterializer
// (by forwarding) satisfy this. Guard uses it to run the common cache-hit
// path under only a shared lock, reserving the exclusive lock for the
// rarer clone.
type CachedMaterializer interface {
	Materializer
	MaterializeCached(ctx context.Context, url string) (*domain.RepoHandle, error)
}

// guarded wraps a Materializer with the cache-root lock: a cache hit is
// read under a shared lock, and only a genuine clone-or-write takes the
// exclusive lock, per spec.md §5's reader/writer split. If inner does not
// expose a cache-only probe, every call falls back to the exclusive path.
type guarded struct {
	inner Materializer
	coord *Coordinator
}

// Guard wraps inner with the cache-root lock.
func (c *Coordinator) Guard(inner Materializer) Materializer {
	return &guarded{inner: inner, coord: c}
}

func (g *guarded) Materialize(ctx context.Context, url string) (*domain.RepoHandle, error) {
	if cached, ok := g.inner.(CachedMaterializer); ok {
		var handle *domain.RepoHandle
		err := g.coord.WithShared(ctx, func() error {
			h, err := cached.MaterializeCached(ctx, url)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
		if err == nil {
			return handle, nil
		}
		if !errors.Is(err, gitrepo.ErrCacheMiss) {
			return nil, err
		}
		// Cache miss under the shared lock: fall through and take the
		// exclusive lock for the actual clone below. Another worker may
		// complete the clone in between; inner.Materialize re-checks the
		// sentinel itself before doing any network work.
	}

	var handle *domain.RepoHandle
	err := g.coord.WithExclusive(ctx, func() error {
		h, err := g.inner.Materialize(ctx, url)
		handle = h
		return err
	})
	return handle, err
}

// WithShared runs fn while holding a shared (reader) cache-root lock, used
// around read-only cache lookups that must not run concurrently with a
// writer's clone-in-progress state.
func (c *Coordinator) WithShared(ctx context.Context, fn func() error) error {
	if c.Bypass() {
		return fn()
	}
	if err := c.Ensure(); err != nil {
		return err
	}

	locked, err := c.lock.TryRLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return &CacheLockFailedError{Root: c.root, Err: err}
	}
	if !locked {
		return &CacheLockFailedError{Root: c.root, Err: ctx.Err()}
	}
	defer c.lock.Unlock()

	return fn()
}
