package shell

import (
	"errors"
	"fmt"
)

// ExitError carries the exit code the app requested on shutdown, or 1
// if it failed to start or stop.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.ExitCode)
}

func NewExitError(exitCode int) *ExitError {
	return &ExitError{ExitCode: exitCode}
}

// ExitCode returns the process exit code for err: 0 for nil, the code
// of an ExitError anywhere in the chain, 1 otherwise. ok reports
// whether err was nil or an ExitError.
func ExitCode(err error) (code int, ok bool) {
	if err == nil {
		return 0, true
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode, true
	}

	return 1, false
}
