// Package utils holds small helpers shared across packages.
package utils

import (
	"path/filepath"
	"strings"
)

// ResolveRepoURL resolves a repository URL against a base directory.
// Remote URLs and absolute paths are returned unchanged; relative paths
// are resolved against baseDir so specs can reference trees next to
// themselves regardless of the working directory.
func ResolveRepoURL(url, baseDir string) string {
	if url == "" || baseDir == "" {
		return url
	}
	if strings.Contains(url, "://") || strings.HasPrefix(url, "git@") {
		return url
	}
	if filepath.IsAbs(url) {
		return url
	}
	return filepath.Join(baseDir, url)
}
