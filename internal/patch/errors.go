package patch

import (
	"errors"
	"fmt"
)

// ErrFormat matches every *FormatError.
var ErrFormat = errors.New("malformed patch")

// FormatError reports unparseable patch text. Line is 1-based; 0 means the
// problem is with the patch as a whole.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("malformed patch: %s", e.Reason)
	}
	return fmt.Sprintf("malformed patch at line %d: %s", e.Line, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func formatErr(line int, format string, args ...any) *FormatError {
	return &FormatError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
