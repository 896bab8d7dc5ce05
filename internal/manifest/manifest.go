// Package manifest implements the Metadata Loader: it invokes the real
// cargo binary to resolve a project's complete dependency graph, and parses
// individual Cargo.toml files for the Repository Membership Checker.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cargoaudit/unmaintained/internal/domain"
)

// ManifestParseError is fatal: the project manifest could not be parsed.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string { return fmt.Sprintf("parsing %s: %v", e.Path, e.Err) }
func (e *ManifestParseError) Unwrap() error  { return e.Err }

// ResolveFailedError is fatal: cargo could not resolve the dependency graph.
type ResolveFailedError struct {
	Path string
	Err  error
}

func (e *ResolveFailedError) Error() string { return fmt.Sprintf("resolving %s: %v", e.Path, e.Err) }
func (e *ResolveFailedError) Unwrap() error  { return e.Err }

// Graph is the resolved dependency graph of a project.
type Graph struct {
	Packages         []domain.Package
	Edges            []domain.Edge
	WorkspaceMembers []string
}

// cargoMetadata mirrors the subset of `cargo metadata --format-version=1`
// JSON this loader needs.
type cargoMetadata struct {
	Packages []struct {
		Name         string `json:"name"`
		Version      string `json:"version"`
		ID           string `json:"id"`
		Source       *string `json:"source"`
		Dependencies []struct {
			Name string `json:"name"`
			Req  string `json:"req"`
			Kind string `json:"kind"` // "" (normal), "dev", "build"
		} `json:"dependencies"`
		Repository string `json:"repository"`
	} `json:"packages"`
	WorkspaceMembers []string `json:"workspace_members"`
}

// Load invokes `cargo metadata` against manifestPath and returns the
// resolved graph; its WorkspaceMembers holds the workspace members' package
// names.
func Load(ctx context.Context, manifestPath string) (*Graph, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "cargo", "metadata", "--format-version=1", "--manifest-path", manifestPath)
	out, err := cmd.Output()
	if err != nil {
		return nil, &ResolveFailedError{Path: manifestPath, Err: err}
	}

	var meta cargoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, &ManifestParseError{Path: manifestPath, Err: err}
	}

	g := &Graph{}

	versionByName := make(map[string]string, len(meta.Packages))
	nameByID := make(map[string]string, len(meta.Packages))
	for _, p := range meta.Packages {
		versionByName[p.Name] = p.Version
		nameByID[p.ID] = p.Name
	}
	for _, id := range meta.WorkspaceMembers {
		if name, ok := nameByID[id]; ok {
			g.WorkspaceMembers = append(g.WorkspaceMembers, name)
		}
	}

	for _, p := range meta.Packages {
		src := domain.Source{Kind: domain.CratesIo}
		switch {
		case p.Source == nil:
			src.Kind = domain.Path
		case *p.Source == "":
			src.Kind = domain.Path
		case len(*p.Source) >= 12 && (*p.Source)[:12] == "registry+htt":
			src.Kind = domain.CratesIo
			src.URL = *p.Source
		default:
			src.Kind = domain.Git
			src.URL = *p.Source
		}

		pkg := domain.Package{Name: p.Name, Version: p.Version, Source: src}
		g.Packages = append(g.Packages, pkg)

		for _, d := range p.Dependencies {
			kind := domain.Normal
			switch d.Kind {
			case "dev":
				kind = domain.Dev
			case "build":
				kind = domain.Build
			}
			g.Edges = append(g.Edges, domain.Edge{
				Parent:      pkg,
				Child:       domain.Package{Name: d.Name, Version: versionByName[d.Name]},
				Requirement: d.Req,
				Kind:        kind,
			})
		}
	}

	return g, nil
}

// cargoToml is the subset of a Cargo.toml this loader reads to check
// package identity for the Repository Membership Checker.
type cargoToml struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
}

// ParsePackageName extracts the `package.name` field from raw Cargo.toml
// content. A parse failure returns ("", err); callers in the Membership
// Checker treat that as "skip this manifest with a warning", not fatal.
func ParsePackageName(data []byte) (string, error) {
	var doc cargoToml
	if err := toml.Unmarshal(data, &doc); err != nil {
		return "", err
	}
	return doc.Package.Name, nil
}
