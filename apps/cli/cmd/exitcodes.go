package cmd

import "errors"

// Exit codes for taplogger CLI
const (
	// ExitSuccess indicates the report was written and no test failed
	ExitSuccess = 0

	// ExitTestFailure indicates the report contains failed tests
	ExitTestFailure = 1

	// ExitDecodeError indicates the input stream could not be decoded
	ExitDecodeError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitWriteError indicates the report could not be written
	ExitWriteError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64

	// ExitInterrupted indicates the run was cancelled by a signal
	ExitInterrupted = 130
)

// exitError carries the process exit code for an error. silent errors are
// not printed; the console summary already explains them.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// exitCode maps err to a process exit code
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitUsageError
}

func isSilent(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.silent
}
