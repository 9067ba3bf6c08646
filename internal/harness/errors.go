package harness

import (
	"errors"
	"fmt"
	"strings"
)

// Phase identifies where in the execution cycle an error occurred.
type Phase string

const (
	PhaseSetupOnce    Phase = "setup_once"
	PhaseSetup        Phase = "setup"
	PhaseTransition   Phase = "transition"
	PhaseTeardown     Phase = "teardown"
	PhaseTeardownOnce Phase = "teardown_once"
	PhaseMonitorStart Phase = "monitor_start"
	PhaseMonitorStop  Phase = "monitor_stop"
	PhaseTag          Phase = "tag"
)

// ExecutionError reports that a transition could not be run: a phase command
// failed, a monitor could not be driven, or assertions were requested before
// any execution happened. Execution errors are fatal for the current result
// and are never retried automatically.
type ExecutionError struct {
	// TestName identifies the failing test.
	TestName string

	// Phase is the execution phase that failed, empty for state errors
	// such as checking assertions before execution.
	Phase Phase

	// Repetition is the zero-based repetition index, -1 when the error is
	// not tied to a repetition.
	Repetition int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	switch {
	case e.Phase != "" && e.Repetition >= 0:
		return fmt.Sprintf("test %s: %s failed (repetition %d): %v", e.TestName, e.Phase, e.Repetition, e.Err)
	case e.Phase != "":
		return fmt.Sprintf("test %s: %s failed: %v", e.TestName, e.Phase, e.Err)
	default:
		return fmt.Sprintf("test %s: %v", e.TestName, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err is or wraps an *ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// Failure records one assertion rejection.
type Failure struct {
	// Assertion is the name of the failed assertion.
	Assertion string `json:"assertion"`

	// Repetition is the zero-based run index for per-run assertions,
	// -1 for whole-result assertions.
	Repetition int `json:"repetition"`

	// Message describes which captured state violated the expectation.
	Message string `json:"message"`
}

// String renders the failure as a single diagnostic line.
func (f Failure) String() string {
	if f.Repetition >= 0 {
		return fmt.Sprintf("assertion %s (run %d): %s", f.Assertion, f.Repetition, f.Message)
	}
	return fmt.Sprintf("assertion %s: %s", f.Assertion, f.Message)
}

// AssertionError reports that captured data violates one or more
// assertions. Every evaluated failure is included; the message is the
// newline-joined list of individual failure lines.
type AssertionError struct {
	TestName string
	Failures []Failure
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	lines := make([]string, 0, len(e.Failures)+1)
	lines = append(lines, fmt.Sprintf("test %s: %d assertion failure(s):", e.TestName, len(e.Failures)))
	for _, f := range e.Failures {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}

// IsAssertionError reports whether err is or wraps an *AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}
