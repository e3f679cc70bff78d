package main

// Process exit codes beyond the generic failure.
const (
	exitFailure = 1
	exitPartial = 2
	exitBreach  = 3
)

// exitError carries the exit code a command wants fail to use.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e exitError) Unwrap() error {
	return e.err
}

func (e exitError) ExitCode() int {
	if e.code == 0 {
		return exitFailure
	}
	return e.code
}
