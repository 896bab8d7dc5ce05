package diskcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cargoaudit/unmaintained/internal/domain"
	"github.com/cargoaudit/unmaintained/internal/gitrepo"
)

func TestEnsureCreatesLayout(t *testing.T) {
	root := t.TempDir()
	c := New(root, true)
	if err := c.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, dir := range []string{c.ReposDir(), c.IndexDir()} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected %s to exist as a directory", dir)
		}
	}
}

func TestWithExclusiveRunsFn(t *testing.T) {
	root := t.TempDir()
	c := New(root, true)
	ran := false
	err := c.WithExclusive(context.Background(), func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithExclusive: %v", err)
	}
	if !ran {
		t.Error("expected fn to run under the exclusive lock")
	}
}

func TestBypassSkipsLockFileEntirely(t *testing.T) {
	root := filepath.Join(t.TempDir(), "never-created")
	c := New(root, false)
	if !c.Bypass() {
		t.Fatal("expected Bypass to be true when useCache is false")
	}
	ran := false
	if err := c.WithExclusive(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatalf("WithExclusive: %v", err)
	}
	if !ran {
		t.Error("expected fn to run even with the cache bypassed")
	}
	if _, err := os.Stat(root); err == nil {
		t.Error("expected no cache-root directory to be created when bypassed")
	}
}

func TestWithSharedRunsFn(t *testing.T) {
	root := t.TempDir()
	c := New(root, true)

	for i := 0; i < 2; i++ {
		ran := false
		if err := c.WithShared(context.Background(), func() error { ran = true; return nil }); err != nil {
			t.Fatalf("WithShared: %v", err)
		}
		if !ran {
			t.Error("expected fn to run under the shared lock")
		}
	}
}

// fakeCachedMaterializer records which of MaterializeCached/Materialize was
// called, so Guard's lock-escalation behavior can be asserted directly.
type fakeCachedMaterializer struct {
	cacheHit    bool
	cachedCalls int
	cloneCalls  int
}

func (f *fakeCachedMaterializer) MaterializeCached(_ context.Context, url string) (*domain.RepoHandle, error) {
	f.cachedCalls++
	if !f.cacheHit {
		return nil, gitrepo.ErrCacheMiss
	}
	return &domain.RepoHandle{NormalizedURL: url}, nil
}

func (f *fakeCachedMaterializer) Materialize(_ context.Context, url string) (*domain.RepoHandle, error) {
	f.cloneCalls++
	return &domain.RepoHandle{NormalizedURL: url}, nil
}

func TestGuardUsesCacheProbeOnHitWithoutCloning(t *testing.T) {
	root := t.TempDir()
	c := New(root, true)
	inner := &fakeCachedMaterializer{cacheHit: true}

	handle, err := c.Guard(inner).Materialize(context.Background(), "https://github.com/o/r")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle on a cache hit")
	}
	if inner.cachedCalls != 1 || inner.cloneCalls != 0 {
		t.Errorf("expected the shared cache probe to satisfy the call without cloning, got cachedCalls=%d cloneCalls=%d", inner.cachedCalls, inner.cloneCalls)
	}
}

func TestGuardEscalatesToExclusiveOnCacheMiss(t *testing.T) {
	root := t.TempDir()
	c := New(root, true)
	inner := &fakeCachedMaterializer{cacheHit: false}

	handle, err := c.Guard(inner).Materialize(context.Background(), "https://github.com/o/r")
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if handle == nil {
		t.Fatal("expected a handle after the clone path runs")
	}
	if inner.cachedCalls != 1 || inner.cloneCalls != 1 {
		t.Errorf("expected a cache probe followed by exactly one clone, got cachedCalls=%d cloneCalls=%d", inner.cachedCalls, inner.cloneCalls)
	}
}
