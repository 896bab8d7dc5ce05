// Package domain holds the data model shared by every classification
// component: package identity, dependency edges, repository handles, and
// verdicts.
package domain

import "time"

// SourceKind is the provenance of a resolved package.
type SourceKind int

const (
	CratesIo SourceKind = iota
	Git
	Path
	Registry
)

// Source identifies where a resolved package came from. The core only
// classifies packages whose Kind is CratesIo; the scheduler leaves all others
// out of the candidate set, so they get no verdict and are not reported.
type Source struct {
	Kind SourceKind
	URL  string // set for Git and Registry
	Path string // set for Path
}

// Package is a node in the resolved dependency graph.
type Package struct {
	Name    string
	Version string
	Source  Source
}

// Scope is the kind of a dependency edge. The core considers only Normal
// and Build edges; Dev edges are excluded from the candidate set.
type Scope int

const (
	Normal Scope = iota
	Build
	Dev
)

// Edge is a single dependency relationship in the resolved graph.
type Edge struct {
	Parent      Package
	Child       Package
	Requirement string
	Kind        Scope
}

// RepoHandle is a materialized, read-only view of a cloned repository.
type RepoHandle struct {
	NormalizedURL  string
	ClonePath      string
	HeadCommitTime time.Time

	// Virtual is set for hosts the Repository Store recognizes but cannot
	// clone with git (e.g. Mercurial); membership is deemed satisfied for
	// these per spec.
	Virtual bool
}

// VersionInfo is one entry in a Registry Index Reader's version list.
type VersionInfo struct {
	Number        string
	PublishedAt   time.Time
	Yanked        bool
	RepositoryURL string
}

// RegistryEntry is a cached registry response: a package name and its full
// version list as returned by the Registry Index Reader.
type RegistryEntry struct {
	Name     string
	Versions []VersionInfo
}

// Reason is why a package was classified Unmaintained.
type Reason int

const (
	ReasonNone Reason = iota
	RepositoryArchived
	RepositoryMissing
	NotInNamedRepository
	OutdatedAndStale
)

func (r Reason) String() string {
	switch r {
	case RepositoryArchived:
		return "archived"
	case RepositoryMissing:
		return "missing"
	case NotInNamedRepository:
		return "not-in-repo"
	case OutdatedAndStale:
		return "outdated"
	default:
		return ""
	}
}

// OutdatedEdge records one dependency whose declared requirement rejects
// the latest published version of that dependency, where the latest
// version is itself older than the configured max age.
type OutdatedEdge struct {
	Dep           string
	Required      string
	Used          string
	Latest        string
	LatestAgeDays uint64
}

// SkipReason explains why a package was not classified at all.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipLeaf
	SkipWorkspaceMember
	SkipNonCratesIo
	SkipIgnored
	SkipLatestIsFine
	SkipLookupFailed
)

func (s SkipReason) String() string {
	switch s {
	case SkipLeaf:
		return "leaf"
	case SkipWorkspaceMember:
		return "workspace-member"
	case SkipNonCratesIo:
		return "non-crates-io"
	case SkipIgnored:
		return "ignored"
	case SkipLatestIsFine:
		return "latest-is-fine"
	case SkipLookupFailed:
		return "lookup-failed"
	default:
		return ""
	}
}

// VerdictKind is the outer shape of a Verdict.
type VerdictKind int

const (
	Maintained VerdictKind = iota
	Unmaintained
	Skipped
)

// Verdict is the classifier's output for a single candidate package.
type Verdict struct {
	Package      Package
	Kind         VerdictKind
	Reason       Reason       // set when Kind == Unmaintained
	SkipWhy      SkipReason   // set when Kind == Skipped
	Repository   string       // declared repository URL, if any
	RepoAgeDays  *uint64      // nil when the repository age is unknown
	Outdated     []OutdatedEdge
}
