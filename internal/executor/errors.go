package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a command exceeds its timeout.
	ErrTimeout = errors.New("command timeout")
	// ErrSpawn is returned when the program could not be started.
	ErrSpawn = errors.New("command failed to start")
	// ErrCanceled is returned when the caller's context ended the command.
	ErrCanceled = errors.New("command canceled")
)

// ExecutionError reports a command that did not run to completion. Partial
// holds whatever output was captured before it stopped; it is nil when the
// process never started.
type ExecutionError struct {
	Kind    error
	Argv    []string
	Partial *Result
	Cause   error
}

func (e *ExecutionError) Error() string {
	prog := ""
	if len(e.Argv) > 0 {
		prog = e.Argv[0]
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prog, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prog, e.Kind)
}

func (e *ExecutionError) Is(target error) bool {
	return target == e.Kind
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}
