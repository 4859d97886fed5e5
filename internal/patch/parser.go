package patch

import (
	"sort"
	"strconv"
	"strings"
)

// parseState is the position of the parser in the diff grammar.
type parseState int

const (
	stateFileHeader parseState = iota // before "---": preamble and git metadata
	stateNewHeader                    // "---" seen, "+++" required
	stateHunkHeader                   // "+++" seen, "@@" required
	stateHunkBody                     // inside a hunk, counts not yet met
	stateAfterHunk                    // hunk complete: "@@", "\", next file, or preamble
)

const noNewlineMarker = `\ No newline at end of file`

type parser struct {
	state   parseState
	lineNo  int
	set     PatchSet
	group   *FileGroup
	hunk    *Hunk
	oldLeft int
	newLeft int
	// headerLine is where the current group started, for errors about it.
	headerLine int
}

// Parse turns unified diff text into a PatchSet. Text before the first
// file header and git metadata lines are ignored; everything else must fit
// the grammar exactly.
func Parse(text string) (*PatchSet, error) {
	p := &parser{}

	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for i, line := range lines {
		p.lineNo = i + 1
		if err := p.feed(line); err != nil {
			return nil, err
		}
	}
	p.lineNo = 0
	if err := p.finish(); err != nil {
		return nil, err
	}
	return &p.set, nil
}

func (p *parser) feed(line string) error {
	switch p.state {
	case stateFileHeader:
		return p.fileHeader(line)
	case stateNewHeader:
		return p.newHeader(line)
	case stateHunkHeader:
		return p.hunkHeader(line)
	case stateHunkBody:
		return p.hunkBody(line)
	case stateAfterHunk:
		return p.afterHunk(line)
	}
	return nil
}

func (p *parser) fileHeader(line string) error {
	switch {
	case strings.HasPrefix(line, "--- "):
		p.group = &FileGroup{OldPath: headerPath(line[4:])}
		p.headerLine = p.lineNo
		p.state = stateNewHeader
	case strings.HasPrefix(line, "+++ "):
		return formatErr(p.lineNo, `"+++" header without a preceding "---" header`)
	case strings.HasPrefix(line, "@@"):
		return formatErr(p.lineNo, "hunk header before any file header")
	case strings.HasPrefix(line, "GIT binary patch"):
		return formatErr(p.lineNo, "binary patches are not supported")
	}
	return nil
}

func (p *parser) newHeader(line string) error {
	if !strings.HasPrefix(line, "+++ ") {
		return formatErr(p.lineNo, `expected "+++" header after "---" header`)
	}
	g := p.group
	g.NewPath = headerPath(line[4:])
	switch {
	case g.OldPath == DevNull && g.NewPath == DevNull:
		return formatErr(p.lineNo, "both file headers are /dev/null")
	case g.NewPath == DevNull:
		g.Path = g.OldPath
	default:
		g.Path = g.NewPath
	}
	if g.Path == "" {
		return formatErr(p.lineNo, "empty file path in header")
	}
	p.state = stateHunkHeader
	return nil
}

func (p *parser) hunkHeader(line string) error {
	if !strings.HasPrefix(line, "@@") {
		return formatErr(p.lineNo, "expected hunk header after file headers for %s", p.group.Path)
	}
	h, err := parseHunkHeader(line)
	if err != nil {
		err.Line = p.lineNo
		return err
	}
	p.hunk = &h
	p.oldLeft = h.OldCount
	p.newLeft = h.NewCount
	p.state = stateHunkBody
	if p.oldLeft == 0 && p.newLeft == 0 {
		p.endHunk()
	}
	return nil
}

func (p *parser) hunkBody(line string) error {
	kind, text, ok := bodyLine(line)
	if !ok {
		if strings.HasPrefix(line, `\`) {
			return p.markNoNewline(line)
		}
		return formatErr(p.lineNo, "hunk %s ends early: %d original and %d new lines missing",
			p.hunk.header(), p.oldLeft, p.newLeft)
	}

	switch kind {
	case Context:
		p.oldLeft--
		p.newLeft--
	case Removed:
		p.oldLeft--
	case Added:
		p.newLeft--
	}
	if p.oldLeft < 0 || p.newLeft < 0 {
		return formatErr(p.lineNo, "hunk %s has more lines than its header declares", p.hunk.header())
	}
	p.hunk.Lines = append(p.hunk.Lines, Line{Kind: kind, Text: text})
	if p.oldLeft == 0 && p.newLeft == 0 {
		p.endHunk()
	}
	return nil
}

func (p *parser) afterHunk(line string) error {
	switch {
	case strings.HasPrefix(line, "@@"):
		p.state = stateHunkHeader
		return p.hunkHeader(line)
	case strings.HasPrefix(line, `\`):
		return p.markNoNewline(line)
	case strings.HasPrefix(line, "--- "):
		if err := p.endGroup(); err != nil {
			return err
		}
		return p.fileHeader(line)
	case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"), strings.HasPrefix(line, " "):
		return formatErr(p.lineNo, "diff line outside a hunk (hunk %s is already complete)", p.lastHunk().header())
	}
	// Anything else (a "diff --git" line, index lines, blank lines, mail
	// text) ends the group.
	if err := p.endGroup(); err != nil {
		return err
	}
	p.state = stateFileHeader
	return p.fileHeader(line)
}

// markNoNewline attaches the "\ No newline at end of file" marker to the
// previous body line.
func (p *parser) markNoNewline(line string) error {
	if !strings.HasPrefix(line, noNewlineMarker) {
		// Localized diff tools word the marker differently; only the
		// backslash matters.
		if len(line) < 2 || line[1] != ' ' {
			return formatErr(p.lineNo, "unrecognized line %q", line)
		}
	}
	var h *Hunk
	if p.state == stateHunkBody {
		h = p.hunk
	} else {
		h = p.lastHunk()
	}
	if h == nil || len(h.Lines) == 0 {
		return formatErr(p.lineNo, "no-newline marker without a preceding line")
	}
	h.Lines[len(h.Lines)-1].NoNewline = true
	return nil
}

func (p *parser) endHunk() {
	p.group.Hunks = append(p.group.Hunks, *p.hunk)
	p.hunk = nil
	p.state = stateAfterHunk
}

func (p *parser) lastHunk() *Hunk {
	if p.group == nil || len(p.group.Hunks) == 0 {
		return nil
	}
	return &p.group.Hunks[len(p.group.Hunks)-1]
}

func (p *parser) endGroup() error {
	g := p.group
	sort.SliceStable(g.Hunks, func(i, j int) bool {
		return g.Hunks[i].OldStart < g.Hunks[j].OldStart
	})
	if i, ok := firstOverlap(g.Hunks); ok {
		return &FormatError{
			Line:   p.headerLine,
			Reason: "overlapping hunks " + g.Hunks[i].header() + " and " + g.Hunks[i+1].header() + " in " + g.Path,
		}
	}
	p.set.Groups = append(p.set.Groups, *g)
	p.group = nil
	return nil
}

func (p *parser) finish() error {
	switch p.state {
	case stateNewHeader:
		return formatErr(0, `patch ends after "---" header without "+++" header`)
	case stateHunkHeader:
		return formatErr(0, "file %s has no hunks", p.group.Path)
	case stateHunkBody:
		return formatErr(0, "patch ends inside hunk %s: %d original and %d new lines missing",
			p.hunk.header(), p.oldLeft, p.newLeft)
	case stateAfterHunk:
		if err := p.endGroup(); err != nil {
			return err
		}
	}
	if len(p.set.Groups) == 0 {
		return formatErr(0, "no file changes found")
	}
	return nil
}

// bodyLine classifies one hunk body line. A completely empty line is an
// empty context line; some editors strip the lone trailing space.
func bodyLine(line string) (LineKind, string, bool) {
	if line == "" {
		return Context, "", true
	}
	switch line[0] {
	case ' ':
		return Context, line[1:], true
	case '+':
		return Added, line[1:], true
	case '-':
		return Removed, line[1:], true
	}
	return 0, "", false
}

// parseHunkHeader parses "@@ -a[,b] +c[,d] @@ [section]".
func parseHunkHeader(line string) (Hunk, *FormatError) {
	rest, ok := strings.CutPrefix(strings.TrimRight(line, "\r"), "@@ ")
	if !ok {
		return Hunk{}, &FormatError{Reason: "malformed hunk header " + strconv.Quote(line)}
	}
	ranges, section, ok := strings.Cut(rest, " @@")
	if !ok {
		return Hunk{}, &FormatError{Reason: "hunk header missing closing @@: " + strconv.Quote(line)}
	}
	oldPart, newPart, ok := strings.Cut(ranges, " ")
	if !ok || !strings.HasPrefix(oldPart, "-") || !strings.HasPrefix(newPart, "+") {
		return Hunk{}, &FormatError{Reason: "malformed hunk ranges " + strconv.Quote(ranges)}
	}

	var h Hunk
	var err error
	if h.OldStart, h.OldCount, err = parseRange(oldPart[1:]); err != nil {
		return Hunk{}, &FormatError{Reason: "bad original range " + strconv.Quote(oldPart) + ": " + err.Error()}
	}
	if h.NewStart, h.NewCount, err = parseRange(newPart[1:]); err != nil {
		return Hunk{}, &FormatError{Reason: "bad new range " + strconv.Quote(newPart) + ": " + err.Error()}
	}
	if h.OldCount > 0 && h.OldStart == 0 {
		return Hunk{}, &FormatError{Reason: "original range starts at line 0 but is not empty"}
	}
	h.Section = strings.TrimSpace(section)
	return h, nil
}

// parseRange parses "start[,count]"; an omitted count means 1.
func parseRange(s string) (int, int, error) {
	startStr, countStr, hasCount := strings.Cut(s, ",")
	start, err := strconv.Atoi(startStr)
	if err != nil || start < 0 {
		return 0, 0, strconv.ErrSyntax
	}
	if !hasCount {
		return start, 1, nil
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		return 0, 0, strconv.ErrSyntax
	}
	return start, count, nil
}

// headerPath extracts the path from the text after "--- " or "+++ ":
// trailing timestamps are dropped, git quoting is undone, and the a/ or b/
// prefix is stripped.
func headerPath(s string) string {
	s = strings.TrimRight(s, "\r")
	if strings.HasPrefix(s, `"`) {
		if end := closingQuote(s); end > 0 {
			if unq, err := strconv.Unquote(s[:end+1]); err == nil {
				return stripPrefix(unq)
			}
		}
	}
	if tab := strings.IndexByte(s, '\t'); tab >= 0 {
		s = s[:tab]
	}
	s = strings.TrimSpace(s)
	if s == DevNull {
		return s
	}
	return stripPrefix(s)
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

func stripPrefix(p string) string {
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}

// firstOverlap returns the index of the first of two sorted hunks whose
// original ranges intersect.
func firstOverlap(hunks []Hunk) (int, bool) {
	for i := 0; i+1 < len(hunks); i++ {
		_, end := hunks[i].oldRange()
		next, _ := hunks[i+1].oldRange()
		if next < end {
			return i, true
		}
	}
	return 0, false
}
