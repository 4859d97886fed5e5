// Package pathguard confines filesystem paths to a single workspace root.
//
// Every path handed to a mutating operation must go through Guard.Resolve
// immediately before the mutation. Resolution is done component by component
// so that symlinks are followed and checked on the way, and containment is
// decided on the canonical result rather than on the literal string.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxSymlinkHops = 64

// Guard holds an immutable, canonical workspace root.
type Guard struct {
	root      string
	reserved  []reservedEntry
	protected []string
}

// Option configures a Guard.
type Option func(*Guard)

// Protect refuses paths equal to or beneath each of paths, even though they
// lie inside the root. Relative paths are taken from the root. Used to keep
// the tool's own configuration and audit log out of reach of what it guards.
func Protect(paths ...string) Option {
	return func(g *Guard) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if !filepath.IsAbs(p) {
				p = filepath.Join(g.root, p)
			}
			p = canonicalPrefix(filepath.Clean(p))
			if g.IsRootOrAncestor(p) {
				continue
			}
			g.protected = append(g.protected, p)
		}
	}
}

// canonicalPrefix resolves symlinks in the longest existing prefix of path
// and appends the rest unchanged.
func canonicalPrefix(path string) string {
	rest := ""
	for dir := path; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest)
		}
		if filepath.Dir(dir) == dir {
			return path
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

type reservedEntry struct {
	path string
	info os.FileInfo // nil when the path does not exist on this host
}

// New canonicalises root (absolute, symlinks resolved) and returns a Guard for it.
// The root must be an existing directory and must not be a reserved system path.
func New(root string, opts ...Option) (*Guard, error) {
	if root == "" {
		return nil, ErrRootNotSet
	}
	canonical, err := canonicaliseRoot(root)
	if err != nil {
		return nil, err
	}

	g := &Guard{root: canonical}
	for _, p := range reservedPaths {
		entry := reservedEntry{path: filepath.Clean(p)}
		if info, err := os.Stat(p); err == nil {
			entry.info = info
		}
		g.reserved = append(g.reserved, entry)
	}

	if underVirtualFS(canonical) {
		return nil, &RootError{Root: canonical, Cause: fmt.Errorf("root lies on a virtual filesystem")}
	}
	if hit := g.reservedMatch(canonical); hit != "" {
		return nil, &RootError{Root: canonical, Cause: fmt.Errorf("root is the reserved system path %s", hit)}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Resolve is a one-shot form of New(root).Resolve(candidate).
func Resolve(candidate, root string) (string, error) {
	g, err := New(root)
	if err != nil {
		return "", err
	}
	return g.Resolve(candidate)
}

func canonicaliseRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &RootError{Root: root, Cause: err}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &RootError{Root: abs, Cause: err}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &RootError{Root: resolved, Cause: err}
	}
	if !info.IsDir() {
		return "", &RootError{Root: resolved, Cause: fmt.Errorf("%w: %s", ErrNotADirectory, resolved)}
	}
	return resolved, nil
}

// Root returns the canonical workspace root.
func (g *Guard) Root() string { return g.root }

// Resolve canonicalises candidate (relative paths are taken from the root) and
// returns the absolute canonical path when it is the root or lies beneath it.
// Any failure to prove containment is reported as an *EscapeError.
func (g *Guard) Resolve(candidate string) (string, error) {
	if g == nil || g.root == "" {
		return "", ErrRootNotSet
	}
	if candidate == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(candidate, 0) {
		return "", &EscapeError{Path: candidate, Reason: "path contains a NUL byte"}
	}

	var absInput string
	if filepath.IsAbs(candidate) {
		absInput = filepath.Clean(candidate)
	} else {
		absInput = filepath.Join(g.root, candidate)
	}

	rel, err := filepath.Rel(g.root, absInput)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &EscapeError{Path: candidate, Resolved: absInput, Reason: "outside the workspace"}
	}

	var parts []string
	if filepath.IsAbs(candidate) {
		parts = splitPath(rel)
	} else {
		parts = splitPath(candidate)
	}

	resolved, err := g.walk(candidate, parts)
	if err != nil {
		return "", err
	}

	if hit := g.reservedAlong(resolved); hit != "" {
		return "", &EscapeError{Path: candidate, Resolved: resolved, Reason: "resolves to reserved system path " + hit}
	}
	if hit, ok := g.protectedMatch(resolved); ok {
		return "", &EscapeError{Path: candidate, Resolved: resolved, Reason: "inside protected path " + hit, Protected: true}
	}
	return resolved, nil
}

// IsProtected reports whether candidate names, or resolves into, a path
// passed to Protect. Both the literal form and the canonical form are checked.
func (g *Guard) IsProtected(candidate string) (string, bool) {
	abs := candidate
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, abs)
	}
	if hit, ok := g.protectedMatch(filepath.Clean(abs)); ok {
		return hit, true
	}
	_, err := g.Resolve(candidate)
	var escape *EscapeError
	if errors.As(err, &escape) && escape.Protected {
		hit, _ := g.protectedMatch(escape.Resolved)
		return hit, true
	}
	return "", false
}

func (g *Guard) protectedMatch(path string) (string, bool) {
	sep := string(filepath.Separator)
	for _, p := range g.protected {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, sep)+sep) {
			return p, true
		}
	}
	return "", false
}

// walk resolves parts beneath the root with the same semantics the kernel
// uses: ".." applies to the already-resolved prefix, and symlink targets are
// spliced back into the queue so their own components are checked too.
func (g *Guard) walk(candidate string, parts []string) (string, error) {
	current := g.root
	pending := parts
	hops := 0

	for len(pending) > 0 {
		part := pending[0]
		pending = pending[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			if current == g.root {
				return "", &EscapeError{Path: candidate, Resolved: current, Reason: "parent of the workspace root"}
			}
			current = filepath.Dir(current)
			continue
		}

		next := filepath.Join(current, part)
		info, err := os.Lstat(next)
		if err != nil {
			if os.IsNotExist(err) {
				return g.appendMissing(candidate, next, pending)
			}
			return "", fmt.Errorf("failed to lstat %s: %w", next, err)
		}
		if info.Mode()&os.ModeSymlink == 0 {
			current = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("%w: more than %d hops resolving %s", ErrSymlinkLoop, maxSymlinkHops, candidate)
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("failed to read symlink %s: %w", next, err)
		}
		if filepath.IsAbs(link) {
			target := filepath.Clean(link)
			if !g.Contains(target) {
				return "", &EscapeError{Path: candidate, Resolved: target, Reason: "symlink " + next + " points outside the workspace"}
			}
			rel, _ := filepath.Rel(g.root, target)
			current = g.root
			pending = append(splitPath(rel), pending...)
		} else {
			pending = append(splitPath(link), pending...)
		}
	}
	return current, nil
}

// appendMissing finishes a resolution once a component does not exist. The
// rest cannot contain symlinks, but ".." through a directory that does not
// exist yet is refused: creating it later would change what the path means.
func (g *Guard) appendMissing(candidate, current string, rest []string) (string, error) {
	for _, part := range rest {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", &EscapeError{Path: candidate, Resolved: current, Reason: "parent traversal through a missing directory"}
		}
		current = filepath.Join(current, part)
	}
	if !g.Contains(current) {
		return "", &EscapeError{Path: candidate, Resolved: current, Reason: "outside the workspace"}
	}
	return current, nil
}

func splitPath(p string) []string {
	return strings.Split(filepath.FromSlash(p), string(filepath.Separator))
}

// Contains reports whether an already-canonical path is the root or beneath it.
// It is purely lexical; use Resolve for untrusted input.
func (g *Guard) Contains(path string) bool {
	p := filepath.Clean(path)
	if p == g.root {
		return true
	}
	prefix := g.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

// IsRootOrAncestor reports whether the canonical path is the root or one of its parents.
func (g *Guard) IsRootOrAncestor(path string) bool {
	p := filepath.Clean(path)
	if p == g.root {
		return true
	}
	rel, err := filepath.Rel(p, g.root)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Rel returns path relative to the root with forward slashes ("." for the root).
func (g *Guard) Rel(path string) (string, error) {
	abs, err := g.Resolve(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return "", &EscapeError{Path: path, Resolved: abs, Reason: "outside the workspace"}
	}
	return filepath.ToSlash(rel), nil
}

// reservedAlong checks resolved and each existing ancestor down to (not
// including) the root against the reserved set, by name and by file identity.
// The identity check catches reserved directories bind-mounted inside the root.
func (g *Guard) reservedAlong(resolved string) string {
	if hit := g.reservedMatch(resolved); hit != "" {
		return hit
	}
	for p := resolved; p != g.root && g.Contains(p); p = filepath.Dir(p) {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		for _, r := range g.reserved {
			if r.info != nil && os.SameFile(info, r.info) {
				return r.path
			}
		}
	}
	return ""
}

func (g *Guard) reservedMatch(path string) string {
	p := filepath.Clean(path)
	for _, r := range g.reserved {
		if p == r.path {
			return r.path
		}
	}
	info, err := os.Stat(p)
	if err != nil {
		return ""
	}
	for _, r := range g.reserved {
		if r.info != nil && os.SameFile(info, r.info) {
			return r.path
		}
	}
	return ""
}
