package outdated

import (
	"context"
	"testing"
	"time"
)

type fakeLookup struct {
	versions map[string]struct {
		version     string
		publishedAt time.Time
	}
	err error
}

func (f *fakeLookup) LatestNonYanked(_ context.Context, name string) (string, time.Time, string, error) {
	if f.err != nil {
		return "", time.Time{}, "", f.err
	}
	v := f.versions[name]
	return v.version, v.publishedAt, "", nil
}

func set(versions map[string]struct {
	version     string
	publishedAt time.Time
}, name, version string, age time.Duration, now time.Time) {
	versions[name] = struct {
		version     string
		publishedAt time.Time
	}{version: version, publishedAt: now.Add(-age)}
}

func TestOutdatedEdgesFlagsIncompatibleStaleUpgrade(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := map[string]struct {
		version     string
		publishedAt time.Time
	}{}
	set(versions, "serde", "2.0.0", 400*24*time.Hour, now)

	lookup := &fakeLookup{versions: versions}
	a := New(lookup, 365*24*time.Hour)
	a.now = func() time.Time { return now }

	edges, err := a.OutdatedEdges(context.Background(), []Direct{
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
	})
	if err != nil {
		t.Fatalf("OutdatedEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 outdated edge, got %d", len(edges))
	}
	if edges[0].Latest != "2.0.0" {
		t.Errorf("unexpected latest version: %q", edges[0].Latest)
	}
	if edges[0].LatestAgeDays != 400 {
		t.Errorf("expected age 400 days, got %d", edges[0].LatestAgeDays)
	}
}

func TestOutdatedEdgesSkipsWhenLatestSatisfiesRequirement(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := map[string]struct {
		version     string
		publishedAt time.Time
	}{}
	set(versions, "serde", "1.0.9", 400*24*time.Hour, now)

	a := New(&fakeLookup{versions: versions}, 365*24*time.Hour)
	a.now = func() time.Time { return now }

	edges, err := a.OutdatedEdges(context.Background(), []Direct{
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
	})
	if err != nil {
		t.Fatalf("OutdatedEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no outdated edges when the latest version satisfies the requirement, got %v", edges)
	}
}

func TestOutdatedEdgesSkipsWhenUpgradeIsTooRecent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := map[string]struct {
		version     string
		publishedAt time.Time
	}{}
	set(versions, "serde", "2.0.0", 10*24*time.Hour, now)

	a := New(&fakeLookup{versions: versions}, 365*24*time.Hour)
	a.now = func() time.Time { return now }

	edges, err := a.OutdatedEdges(context.Background(), []Direct{
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
	})
	if err != nil {
		t.Fatalf("OutdatedEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Fatalf("expected no outdated edges for a too-recent incompatible upgrade, got %v", edges)
	}
}

func TestOutdatedEdgesDedupesByNameAndRequirement(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := map[string]struct {
		version     string
		publishedAt time.Time
	}{}
	set(versions, "serde", "2.0.0", 400*24*time.Hour, now)

	calls := 0
	counting := &countingLookup{fakeLookup: fakeLookup{versions: versions}, calls: &calls}
	a := New(counting, 365*24*time.Hour)
	a.now = func() time.Time { return now }

	_, err := a.OutdatedEdges(context.Background(), []Direct{
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
	})
	if err != nil {
		t.Fatalf("OutdatedEdges: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one lookup for a duplicate name+requirement pair, got %d", calls)
	}
}

type countingLookup struct {
	fakeLookup
	calls *int
}

func (c *countingLookup) LatestNonYanked(ctx context.Context, name string) (string, time.Time, string, error) {
	*c.calls++
	return c.fakeLookup.LatestNonYanked(ctx, name)
}

func TestOutdatedEdgesToleratesLookupFailure(t *testing.T) {
	a := New(&fakeLookup{err: context.DeadlineExceeded}, 365*24*time.Hour)

	edges, err := a.OutdatedEdges(context.Background(), []Direct{
		{Name: "serde", Required: "^1.0", Used: "1.0.5"},
	})
	if err != nil {
		t.Fatalf("OutdatedEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("expected a lookup failure to be silently skipped, got %v", edges)
	}
}
