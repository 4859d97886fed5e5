package pathguard

import (
	"errors"
	"fmt"
)

var (
	// ErrPathEscape is matched by every containment failure (errors.Is).
	ErrPathEscape = errors.New("path escapes workspace root")

	ErrRootNotSet    = errors.New("workspace root not set")
	ErrEmptyPath     = errors.New("empty path")
	ErrNotADirectory = errors.New("not a directory")
	ErrSymlinkLoop   = errors.New("symlink loop")

	// ErrProtected is matched, alongside ErrPathEscape, by paths refused
	// because they fall under a Protect option.
	ErrProtected = errors.New("protected path")
)

// EscapeError describes why a candidate path was refused.
type EscapeError struct {
	Path     string // candidate as supplied
	Resolved string // canonical form, when resolution got that far
	Reason   string
	// Protected is set when the path is inside the root but under a
	// protected path.
	Protected bool
}

func (e *EscapeError) Error() string {
	if e.Protected {
		return fmt.Sprintf("path %q is not writable: %s", e.Path, e.Reason)
	}
	if e.Resolved != "" && e.Resolved != e.Path {
		return fmt.Sprintf("path %q (resolved to %s) escapes workspace root: %s", e.Path, e.Resolved, e.Reason)
	}
	return fmt.Sprintf("path %q escapes workspace root: %s", e.Path, e.Reason)
}

func (e *EscapeError) Is(target error) bool {
	return target == ErrPathEscape || (e.Protected && target == ErrProtected)
}

// RootError is returned when the workspace root itself is unusable.
type RootError struct {
	Root  string
	Cause error
}

func (e *RootError) Error() string {
	return fmt.Sprintf("invalid workspace root %s: %v", e.Root, e.Cause)
}

func (e *RootError) Unwrap() error { return e.Cause }
