package archival

import (
	"os"
	"strings"
)

// LoadToken resolves a GitHub token per spec.md §6: GITHUB_TOKEN_PATH
// (a file containing the token) is preferred; GITHUB_TOKEN (the literal
// value) is a fallback. If neither is set, archival checking is disabled
// and ("", false) is returned. Grounded in
// original_source/src/github/real/util.rs's load_token.
func LoadToken() (string, bool) {
	if path := os.Getenv("GITHUB_TOKEN_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token, true
			}
		}
	}

	if token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); token != "" {
		return token, true
	}

	return "", false
}
