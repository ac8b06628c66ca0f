package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunTimeout is wrapped when a run exceeds its time limit.
var ErrRunTimeout = errors.New("run timed out")

// ProcessFailureError reports a process that exited non-zero.
type ProcessFailureError struct {
	Process  string
	ExitCode int
	Err      error
}

func (e *ProcessFailureError) Error() string {
	return fmt.Sprintf("process %s exited with code %d", e.Process, e.ExitCode)
}

func (e *ProcessFailureError) Unwrap() error { return e.Err }

// LaunchError reports a process that could not be started or never became
// ready. Processes after it in the launch order were not started.
type LaunchError struct {
	Process string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Process, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle in a launch plan.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}
