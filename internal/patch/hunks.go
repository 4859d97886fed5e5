package patch

import (
	"fmt"
	"sort"
	"strings"
)

// textLine is one line of file content; eol is false only for a final line
// with no trailing line feed.
type textLine struct {
	text string
	eol  bool
}

func splitContent(content []byte) []textLine {
	if len(content) == 0 {
		return nil
	}
	s := string(content)
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	lines := make([]textLine, len(parts))
	for i, p := range parts {
		text, eol := strings.CutSuffix(p, "\n")
		lines[i] = textLine{text: text, eol: eol}
	}
	return lines
}

func joinContent(lines []textLine) []byte {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		if l.eol {
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

// applyHunks replaces each hunk's original region with its new lines. Every
// context and removed line must match the file exactly at the declared
// position; there is no offset search and no fuzz.
func applyHunks(content []byte, hunks []Hunk) ([]byte, ConflictReason, string) {
	sorted := make([]Hunk, len(hunks))
	copy(sorted, hunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OldStart < sorted[j].OldStart })
	if i, overlap := firstOverlap(sorted); overlap {
		return nil, ReasonHunkOverlap, fmt.Sprintf("hunks %s and %s overlap", sorted[i].header(), sorted[i+1].header())
	}

	lines := splitContent(content)
	out := make([]textLine, 0, len(lines))
	pos := 0

	for _, h := range sorted {
		start, end := h.oldRange()
		if start < 0 || end > len(lines) {
			return nil, ReasonContextMismatch, fmt.Sprintf("hunk %s needs lines %d-%d but the file has %d lines",
				h.header(), start+1, end, len(lines))
		}
		if n := countOld(h); n != h.OldCount {
			return nil, ReasonContextMismatch, fmt.Sprintf("hunk %s carries %d original lines", h.header(), n)
		}

		at := start
		for _, l := range h.Lines {
			if l.Kind == Added {
				continue
			}
			got := lines[at]
			if got.text != l.Text {
				return nil, ReasonContextMismatch, fmt.Sprintf("hunk %s: line %d: expected %q, found %q",
					h.header(), at+1, l.Text, got.text)
			}
			if got.eol == l.NoNewline {
				return nil, ReasonContextMismatch, fmt.Sprintf("hunk %s: line %d: trailing newline differs",
					h.header(), at+1)
			}
			at++
		}

		out = append(out, lines[pos:start]...)
		for _, l := range h.Lines {
			if l.Kind != Removed {
				out = append(out, textLine{text: l.Text, eol: !l.NoNewline})
			}
		}
		pos = end
	}
	out = append(out, lines[pos:]...)
	return joinContent(out), ReasonNone, ""
}

func countOld(h Hunk) int {
	n := 0
	for _, l := range h.Lines {
		if l.Kind != Added {
			n++
		}
	}
	return n
}
