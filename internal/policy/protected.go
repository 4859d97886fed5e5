package policy

import (
	"os"
	"path/filepath"
	"strings"
)

// PathMatcher checks paths against the protected_paths globs. "~" in either
// the pattern or the path expands to the user's home directory.
type PathMatcher struct {
	patterns []string
	homeDir  string
}

func NewPathMatcher(patterns []string) *PathMatcher {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return &PathMatcher{patterns: patterns, homeDir: homeDir}
}

// Match returns the first pattern that path falls under.
func (m *PathMatcher) Match(path string) (string, bool) {
	expandedPath := filepath.ToSlash(m.expandPath(path))
	for _, pattern := range m.patterns {
		expandedPattern := filepath.ToSlash(m.expandPath(pattern))
		if matchGlob(expandedPath, expandedPattern) {
			return pattern, true
		}
	}
	return "", false
}

func (m *PathMatcher) expandPath(path string) string {
	if strings.HasPrefix(path, "~/") && m.homeDir != "" {
		return filepath.Join(m.homeDir, path[2:])
	}
	if path == "~" && m.homeDir != "" {
		return m.homeDir
	}
	return path
}

// ProtectedDir returns the protected system directory that path (absolute,
// cleaned) equals or lies beneath.
func (p *Policy) ProtectedDir(path string) (string, bool) {
	slashed := filepath.ToSlash(path)
	for _, dir := range p.ProtectedDirs {
		if matchGlob(slashed, dir+"/**") {
			return dir, true
		}
	}
	return "", false
}

func matchGlob(path, pattern string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(path, prefix+"/") || path == prefix
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if !strings.HasPrefix(path, prefix+"/") {
			return false
		}
		remainder := strings.TrimPrefix(path, prefix+"/")
		return !strings.Contains(remainder, "/")
	}

	matched, _ := filepath.Match(pattern, path)
	return matched
}
