// Package archival implements the Archival Oracle: for a repository URL
// hosted on GitHub, it answers whether the repository has been archived,
// using the GitHub REST API when a token is configured.
package archival

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/cargoaudit/unmaintained/client"
)

// Status is the tri-state result of an archival check.
type Status int

const (
	Unknown Status = iota
	No
	Yes
)

// APIError wraps a failed call to the GitHub REST API. Per spec.md §7,
// ApiError is never treated as evidence of archival — callers must map it
// to Unknown.
type APIError struct {
	URL string
	Err error
}

func (e *APIError) Error() string { return fmt.Sprintf("github api error for %s: %v", e.URL, e.Err) }
func (e *APIError) Unwrap() error  { return e.Err }

var githubRE = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)`)

type repoResponse struct {
	Archived bool `json:"archived"`
}

// Oracle queries GitHub's archival bit and caches results for the process
// lifetime, mirroring original_source/src/github/real/mod.rs's
// REPOSITORY_CACHE thread-local.
type Oracle struct {
	client        *client.Client
	token         string
	cache         sync.Map // owner/repo -> Status
	githubAPIBase string   // overridable in tests; defaults to api.github.com
}

// New creates an Oracle. An empty token disables API calls entirely; every
// query then returns Unknown without making a network request.
func New(c *client.Client, token string) *Oracle {
	return &Oracle{client: c, token: token, githubAPIBase: "https://api.github.com"}
}

// Archived answers "archived?" for url. Non-GitHub hosts, and any
// network/auth failure, return Unknown — never Yes on failure.
func (o *Oracle) Archived(ctx context.Context, url string) (Status, error) {
	m := githubRE.FindStringSubmatch(url)
	if m == nil {
		return Unknown, nil
	}
	owner, repo := m[1], strings.TrimSuffix(m[2], ".git")
	key := owner + "/" + repo

	if v, ok := o.cache.Load(key); ok {
		return v.(Status), nil
	}

	status := o.queryUncached(ctx, url, owner, repo)
	o.cache.Store(key, status)
	return status, nil
}

func (o *Oracle) queryUncached(ctx context.Context, url, owner, repo string) Status {
	if o.token == "" {
		return Unknown
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s", o.githubAPIBase, owner, repo)

	var resp repoResponse
	if err := o.get(ctx, apiURL, &resp); err != nil {
		return Unknown
	}

	if resp.Archived {
		return Yes
	}
	return No
}

func (o *Oracle) get(ctx context.Context, url string, v *repoResponse) error {
	c := o.client.WithUserAgent("cargo-unmaintained")
	if o.token != "" {
		c = c.WithBearerToken(o.token)
	}
	return c.GetJSON(ctx, url, v)
}
