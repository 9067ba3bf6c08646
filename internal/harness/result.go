package harness

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/flick/internal/monitor"
	"github.com/roach88/flick/internal/trace"
)

// Run is the outcome of one repetition. A run is created by the executor,
// appended to its result once finished, and never retried in place.
type Run struct {
	// Repetition is the zero-based sequence index.
	Repetition int

	// Traces holds the full-window trace per monitor, keyed by monitor
	// name.
	Traces map[string]*trace.Trace

	// Tags holds tagged point-in-time snapshots, keyed by tag name and
	// then monitor name.
	Tags map[string]map[string]*trace.Trace

	// Artifacts lists the on-disk artifact paths written for this run,
	// full-window traces and tagged snapshots alike.
	Artifacts []string

	// Jank is the frame accounting for this run, nil when no jank monitor
	// was configured.
	Jank *monitor.JankStat

	// Err is the terminal error when the transition failed to complete,
	// nil for successful runs.
	Err error
}

// newRun creates an empty run for the given repetition.
func newRun(repetition int) *Run {
	return &Run{
		Repetition: repetition,
		Traces:     make(map[string]*trace.Trace),
		Tags:       make(map[string]map[string]*trace.Trace),
	}
}

// Result aggregates the runs of one execution cycle.
//
// A result is replaced wholesale by CleanUp or a re-execute; it is never
// partially mutated after the executor hands it over. The failure map from
// the most recent assertion evaluation is kept so CleanUp can retain
// artifacts of failing runs for post-mortem inspection.
type Result struct {
	// TestName is the owning test's name.
	TestName string

	// OutputDir is where this result's artifacts live.
	OutputDir string

	// Runs are the recorded repetitions, in execution order.
	Runs []*Run

	// Err is the global error: non-nil only when the executor could not
	// complete every phase of every repetition.
	Err error

	// lastFailures maps repetition index (or -1 for whole-result
	// failures) to the failures of the most recent CheckAssertions call.
	// nil until assertions are first evaluated.
	lastFailures map[int][]Failure
}

// NewResult creates an empty result: nothing executed yet.
func NewResult(testName, outputDir string) *Result {
	return &Result{TestName: testName, OutputDir: outputDir}
}

// IsEmpty reports whether nothing has been executed: no runs recorded and
// no global error.
func (r *Result) IsEmpty() bool {
	return len(r.Runs) == 0 && r.Err == nil
}

// CheckIsExecuted fails with an execution-state error unless at least one
// run exists and no global error is set. Assertions may only be evaluated
// against a result for which this holds.
func (r *Result) CheckIsExecuted() error {
	if r.Err != nil {
		return &ExecutionError{TestName: r.TestName, Repetition: -1, Err: fmt.Errorf("execution failed: %w", r.Err)}
	}
	if len(r.Runs) == 0 {
		return &ExecutionError{TestName: r.TestName, Repetition: -1, Err: errors.New("test has not been executed")}
	}
	return nil
}

// CheckAssertions evaluates assertions against every recorded run.
//
// With onlyFlaky set, only the flaky subset is evaluated; otherwise only
// the non-flaky assertions are. All selected assertions are always
// evaluated so the caller sees the complete failure set in one pass.
// Evaluation is idempotent: calling twice without an intervening execute
// returns the identical failure set.
func (r *Result) CheckAssertions(assertions []Assertion, onlyFlaky bool) []Failure {
	failures := evaluateAll(assertions, r.Runs, onlyFlaky)

	r.lastFailures = make(map[int][]Failure, len(failures))
	for _, f := range failures {
		r.lastFailures[f.Repetition] = append(r.lastFailures[f.Repetition], f)
	}
	return failures
}

// CleanUp deletes the on-disk artifacts of every run that produced no
// assertion failures in the most recent evaluation, then clears the
// in-memory run data. Runs with failures, and all runs when a whole-result
// assertion failed, retain their artifacts for post-mortem inspection.
func (r *Result) CleanUp() error {
	// A whole-result failure cannot be attributed to single runs, so it
	// pins every artifact.
	resultFailed := len(r.lastFailures[-1]) > 0

	var errs []error
	for _, run := range r.Runs {
		if resultFailed || len(r.lastFailures[run.Repetition]) > 0 {
			continue
		}
		for _, path := range run.Artifacts {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("remove artifact %s: %w", path, err))
			}
		}
	}

	r.Runs = nil
	r.Err = nil
	r.lastFailures = nil
	return errors.Join(errs...)
}
