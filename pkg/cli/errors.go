package cli

import (
	"errors"
	"fmt"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitInvalid    = 2
	ExitContention = 3
)

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode returns the exit code for err. Invalid policies and invalid
// configuration exit 2 and a held compile lock exits 3, so scripts can retry
// only the latter.
func ExitCode(err error) int {
	var perr *policy.ValidationError
	var cerr config.ValidationError

	switch {
	case err == nil:
		return ExitOK
	case policy.IsContention(err):
		return ExitContention
	case errors.As(err, &perr), errors.As(err, &cerr):
		return ExitInvalid
	default:
		return ExitFailure
	}
}
