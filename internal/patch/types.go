// Package patch parses unified diffs and applies them to files under a
// workspace root, all or nothing.
package patch

import "fmt"

type LineKind int

const (
	Context LineKind = iota
	Added
	Removed
)

func (k LineKind) String() string {
	switch k {
	case Context:
		return "context"
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// Line is one body line of a hunk. Text excludes the prefix character and
// the line feed but keeps any carriage return. NoNewline marks a line
// followed by "\ No newline at end of file".
type Line struct {
	Kind      LineKind
	Text      string
	NoNewline bool
}

type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	// Section is the optional text after the closing "@@".
	Section string
	Lines   []Line
}

// oldRange returns the zero-based [start, end) span of original lines the
// hunk covers. A hunk with no original lines inserts after line OldStart.
func (h Hunk) oldRange() (int, int) {
	start := h.OldStart - 1
	if h.OldCount == 0 {
		start = h.OldStart
	}
	return start, start + h.OldCount
}

func (h Hunk) header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// DevNull names the missing side of a creation or deletion.
const DevNull = "/dev/null"

// FileGroup is every hunk for one target file. OldPath and NewPath are the
// header paths with any a/ or b/ prefix removed; Path is the one the patch
// writes to.
type FileGroup struct {
	OldPath string
	NewPath string
	Path    string
	Hunks   []Hunk
}

func (g FileGroup) IsCreate() bool { return g.OldPath == DevNull }
func (g FileGroup) IsDelete() bool { return g.NewPath == DevNull }

// onlyAdds reports whether no hunk expects existing content.
func (g FileGroup) onlyAdds() bool {
	for _, h := range g.Hunks {
		if h.OldCount != 0 {
			return false
		}
	}
	return true
}

type PatchSet struct {
	Groups []FileGroup
}

// Files lists the target paths in group order, without duplicates.
func (s *PatchSet) Files() []string {
	seen := make(map[string]bool, len(s.Groups))
	var files []string
	for _, g := range s.Groups {
		if !seen[g.Path] {
			seen[g.Path] = true
			files = append(files, g.Path)
		}
	}
	return files
}

type Mode int

const (
	DryRun Mode = iota
	Commit
)

func (m Mode) String() string {
	if m == Commit {
		return "commit"
	}
	return "dry-run"
}

type Outcome string

const (
	Applied  Outcome = "applied"
	Skipped  Outcome = "skipped"
	Conflict Outcome = "conflict"
)

// ConflictReason says why a group could not be applied.
type ConflictReason string

const (
	ReasonNone            ConflictReason = ""
	ReasonPathEscape      ConflictReason = "PathEscape"
	ReasonFileMissing     ConflictReason = "FileMissing"
	ReasonFileExists      ConflictReason = "FileExists"
	ReasonNotRegularFile  ConflictReason = "NotRegularFile"
	ReasonContextMismatch ConflictReason = "ContextMismatch"
	ReasonHunkOverlap     ConflictReason = "HunkOverlap"
	ReasonOtherGroup      ConflictReason = "OtherGroupFailed"
)

type GroupResult struct {
	Path    string
	Outcome Outcome
	Reason  ConflictReason
	Detail  string
}

func (r GroupResult) String() string {
	if r.Reason == ReasonNone {
		return fmt.Sprintf("%s: %s", r.Path, r.Outcome)
	}
	if r.Detail == "" {
		return fmt.Sprintf("%s: %s (%s)", r.Path, r.Outcome, r.Reason)
	}
	return fmt.Sprintf("%s: %s (%s: %s)", r.Path, r.Outcome, r.Reason, r.Detail)
}

// Result holds one GroupResult per FileGroup, in order. Applied is true only
// when every group applied (or, in DryRun, would apply).
type Result struct {
	Mode    Mode
	Groups  []GroupResult
	Applied bool
}

func (r *Result) Conflicts() []GroupResult {
	var out []GroupResult
	for _, g := range r.Groups {
		if g.Outcome == Conflict {
			out = append(out, g)
		}
	}
	return out
}
