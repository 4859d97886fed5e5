package patch

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffContext is the number of unchanged lines around each change.
const DiffContext = 3

// Diff returns a unified diff turning a into b, or "" when they are equal.
// oldName and newName are written into the headers verbatim; pass DevNull
// for the missing side of a creation or deletion. Parse(Diff(...)) applied
// to a reproduces b exactly, including a missing final newline.
func Diff(oldName, newName, a, b string) string {
	if a == b {
		return ""
	}
	aLines := splitKeepEOL(a)
	bLines := splitKeepEOL(b)

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", oldName, newName)

	m := difflib.NewMatcher(aLines, bLines)
	for _, group := range m.GetGroupedOpCodes(DiffContext) {
		first, last := group[0], group[len(group)-1]
		fmt.Fprintf(&out, "@@ -%s +%s @@\n",
			unifiedRange(first.I1, last.I2), unifiedRange(first.J1, last.J2))
		for _, op := range group {
			switch op.Tag {
			case 'e':
				writeLines(&out, ' ', aLines[op.I1:op.I2])
			case 'd':
				writeLines(&out, '-', aLines[op.I1:op.I2])
			case 'i':
				writeLines(&out, '+', bLines[op.J1:op.J2])
			case 'r':
				writeLines(&out, '-', aLines[op.I1:op.I2])
				writeLines(&out, '+', bLines[op.J1:op.J2])
			}
		}
	}
	return out.String()
}

// splitKeepEOL splits s into lines that keep their "\n", so a final line
// without one compares unequal to the same text with one.
func splitKeepEOL(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(out *strings.Builder, prefix byte, lines []string) {
	for _, l := range lines {
		out.WriteByte(prefix)
		if text, ok := strings.CutSuffix(l, "\n"); ok {
			out.WriteString(text)
			out.WriteByte('\n')
			continue
		}
		out.WriteString(l)
		out.WriteString("\n" + noNewlineMarker + "\n")
	}
}

// unifiedRange formats a zero-based [start, stop) span the way diff -u
// does: an empty span names the line before it.
func unifiedRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return fmt.Sprintf("%d", beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}
