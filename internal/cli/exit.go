package cli

import "fmt"

// Process exit codes.
const (
	ExitOK                = 0
	ExitFailure           = 1
	ExitBlocked           = 2
	ExitNeedsConfirmation = 3
	ExitConflict          = 4
	ExitTimeout           = 124
	ExitSpawnFailure      = 127
)

// ExitError carries an exit code out of a command's RunE so that main can
// exit only after deferred cleanup. Err is printed when non-nil; a nil Err
// means the command already explained itself.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func exitWith(code int) error {
	return &ExitError{Code: code}
}
