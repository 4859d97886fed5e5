package command

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// hiddenChar is a character that makes the displayed command differ from
// what would be executed.
type hiddenChar struct {
	category string // "zero-width", "bidi-override", "tag-char", "control-char", "invalid-utf8", "homoglyph"
	offset   int
	code     string
	confirm  bool // homoglyphs only ask; everything else rejects
	detail   string
}

func (h hiddenChar) finding() finding {
	f := finding{
		rule:   "unicode-" + h.category,
		kind:   Rejected,
		reason: fmt.Sprintf("%s %s at byte %d", h.detail, h.code, h.offset),
	}
	if h.confirm {
		f.kind = NeedsConfirmation
		f.overridable = true
	}
	return f
}

// scanHidden walks input once and reports every smuggling indicator.
func scanHidden(input string) []hiddenChar {
	var found []hiddenChar
	for i := 0; i < len(input); {
		r, size := utf8.DecodeRuneInString(input[i:])
		if r == utf8.RuneError && size == 1 {
			found = append(found, hiddenChar{
				category: "invalid-utf8",
				offset:   i,
				code:     fmt.Sprintf("0x%02X", input[i]),
				detail:   "invalid UTF-8 byte",
			})
			i++
			continue
		}
		if h, ok := classifyRune(r); ok {
			h.offset = i
			h.code = fmt.Sprintf("U+%04X", r)
			found = append(found, h)
		}
		i += size
	}
	return found
}

func classifyRune(r rune) (hiddenChar, bool) {
	switch {
	case isZeroWidth(r):
		return hiddenChar{category: "zero-width", detail: "zero-width character hides content"}, true
	case isBidiControl(r):
		return hiddenChar{category: "bidi-override", detail: "bidirectional control reorders displayed text"}, true
	case r >= 0xE0001 && r <= 0xE007F:
		return hiddenChar{category: "tag-char", detail: "unicode tag character can carry hidden text"}, true
	case isUnsafeControl(r):
		return hiddenChar{category: "control-char", detail: "control character"}, true
	}
	if latin, ok := homoglyphOf(r); ok {
		return hiddenChar{
			category: "homoglyph",
			confirm:  true,
			detail:   fmt.Sprintf("character resembling Latin '%c'", latin),
		}, true
	}
	return hiddenChar{}, false
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', // ZERO WIDTH SPACE
		'\u200C', // ZERO WIDTH NON-JOINER
		'\u200D', // ZERO WIDTH JOINER
		'\uFEFF', // BOM
		'\u2060', // WORD JOINER
		'\u180E', // MONGOLIAN VOWEL SEPARATOR
		'\u200E', // LEFT-TO-RIGHT MARK
		'\u200F': // RIGHT-TO-LEFT MARK
		return true
	}
	return false
}

func isBidiControl(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

// isUnsafeControl allows only tab and newline; a newline is later reported
// as command chaining by the shell checks.
func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

func homoglyphOf(r rune) (rune, bool) {
	if unicode.Is(unicode.Cyrillic, r) {
		latin, ok := cyrillicHomoglyphs[r]
		return latin, ok
	}
	if unicode.Is(unicode.Greek, r) {
		latin, ok := greekHomoglyphs[r]
		return latin, ok
	}
	return 0, false
}

var cyrillicHomoglyphs = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'ј': 'j', 'К': 'K', 'М': 'M', 'о': 'o',
	'О': 'O', 'р': 'p', 'Р': 'P', 'ѕ': 's', 'Ѕ': 'S', 'Т': 'T', 'х': 'x',
	'Х': 'X', 'у': 'y', 'У': 'Y',
}

var greekHomoglyphs = map[rune]rune{
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y',
	'Ζ': 'Z',
}
