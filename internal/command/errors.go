package command

import (
	"errors"
	"fmt"
)

// ErrUnparseable is matched by every tokenization failure (errors.Is).
var ErrUnparseable = errors.New("unparseable command")

// ParseError wraps the shell parser's complaint about a command string,
// typically unbalanced quoting.
type ParseError struct {
	Input string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable command: %v", e.Cause)
}

func (e *ParseError) Is(target error) bool { return target == ErrUnparseable }

func (e *ParseError) Unwrap() error { return e.Cause }
