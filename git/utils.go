package git

import (
	"path/filepath"
	"strings"
)

// RepoNameFromURL extracts the repository name from a remote URL or path.
func RepoNameFromURL(url string) string {
	url = strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")

	// scp-style remotes (git@github.com:user/repo)
	if strings.HasPrefix(url, "git@") {
		if _, path, ok := strings.Cut(url, ":"); ok {
			url = path
		}
	}

	name := filepath.Base(filepath.FromSlash(url))
	if name == "." || name == "/" || name == "" {
		return "unknown"
	}
	return name
}
