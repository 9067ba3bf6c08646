package harness

import "fmt"

// Scope declares what data an assertion reads.
//
// Per-run assertions are evaluated once against each recorded run and may
// produce one failure per run. Whole-result assertions are evaluated once
// against all runs together, e.g. to compare repetitions.
type Scope string

const (
	// ScopeRun evaluates the assertion against each run independently.
	ScopeRun Scope = "run"

	// ScopeResult evaluates the assertion once against all runs.
	ScopeResult Scope = "result"
)

// Assertion is a named, pure predicate over captured trace data.
//
// Exactly one of CheckRun or CheckResult must be set, matching Scope.
// Predicates must be side-effect free and idempotent: evaluating the same
// assertion against the same data twice yields the same outcome.
type Assertion struct {
	// Name identifies the assertion in failure messages. Names should be
	// unique within a test; duplicates are evaluated independently.
	Name string

	// Flaky marks the assertion as known-unreliable. Flaky assertions are
	// excluded from the default assertion pass and only evaluated when the
	// caller asks for the flaky subset.
	Flaky bool

	// Scope selects per-run or whole-result evaluation. Empty defaults
	// to ScopeRun.
	Scope Scope

	// CheckRun is the per-run predicate. A non-nil error rejects the run.
	CheckRun func(run *Run) error

	// CheckResult is the whole-result predicate.
	CheckResult func(runs []*Run) error
}

// scope returns the effective scope.
func (a Assertion) scope() Scope {
	if a.Scope == "" {
		return ScopeRun
	}
	return a.Scope
}

// validate checks that the assertion declaration is coherent.
func (a Assertion) validate() error {
	if a.Name == "" {
		return fmt.Errorf("assertion name is required")
	}
	switch a.scope() {
	case ScopeRun:
		if a.CheckRun == nil {
			return fmt.Errorf("assertion %s: per-run assertion requires CheckRun", a.Name)
		}
		if a.CheckResult != nil {
			return fmt.Errorf("assertion %s: per-run assertion must not set CheckResult", a.Name)
		}
	case ScopeResult:
		if a.CheckResult == nil {
			return fmt.Errorf("assertion %s: whole-result assertion requires CheckResult", a.Name)
		}
		if a.CheckRun != nil {
			return fmt.Errorf("assertion %s: whole-result assertion must not set CheckRun", a.Name)
		}
	default:
		return fmt.Errorf("assertion %s: unknown scope %q", a.Name, a.Scope)
	}
	return nil
}

// evaluate runs one assertion against the recorded runs and returns every
// failure it produces. Per-run assertions are checked against each run;
// whole-result assertions once against all runs.
func evaluate(a Assertion, runs []*Run) []Failure {
	if a.scope() == ScopeResult {
		if a.CheckResult == nil {
			return []Failure{{Assertion: a.Name, Repetition: -1, Message: "assertion has no predicate"}}
		}
		if err := a.CheckResult(runs); err != nil {
			return []Failure{{Assertion: a.Name, Repetition: -1, Message: err.Error()}}
		}
		return nil
	}

	if a.CheckRun == nil {
		return []Failure{{Assertion: a.Name, Repetition: -1, Message: "assertion has no predicate"}}
	}
	var failures []Failure
	for _, run := range runs {
		if err := a.CheckRun(run); err != nil {
			failures = append(failures, Failure{
				Assertion:  a.Name,
				Repetition: run.Repetition,
				Message:    err.Error(),
			})
		}
	}
	return failures
}

// evaluateAll evaluates assertions against runs, filtered to the flaky
// subset when onlyFlaky is set. Every selected assertion is evaluated; the
// pass never short-circuits on the first failure, so callers see the full
// failure set at once.
func evaluateAll(assertions []Assertion, runs []*Run, onlyFlaky bool) []Failure {
	var failures []Failure
	for _, a := range assertions {
		if a.Flaky != onlyFlaky {
			continue
		}
		failures = append(failures, evaluate(a, runs)...)
	}
	return failures
}

// TraceNotEmpty returns a per-run assertion that the named monitor produced
// at least one snapshot.
func TraceNotEmpty(monitorName string) Assertion {
	return Assertion{
		Name:  fmt.Sprintf("%s_trace_not_empty", monitorName),
		Scope: ScopeRun,
		CheckRun: func(run *Run) error {
			tr := run.Traces[monitorName]
			if tr.Len() == 0 {
				return fmt.Errorf("monitor %s captured no snapshots", monitorName)
			}
			return nil
		},
	}
}

// TagPresent returns a per-run assertion that the given tag was captured.
func TagPresent(tag string) Assertion {
	return Assertion{
		Name:  fmt.Sprintf("tag_%s_present", tag),
		Scope: ScopeRun,
		CheckRun: func(run *Run) error {
			if _, ok := run.Tags[tag]; !ok {
				return fmt.Errorf("tag %q not captured", tag)
			}
			return nil
		},
	}
}

// JankBelow returns a per-run assertion that the recorded janky frame count
// does not exceed maxJanky.
func JankBelow(maxJanky int64) Assertion {
	return Assertion{
		Name:  "jank_below",
		Scope: ScopeRun,
		CheckRun: func(run *Run) error {
			if run.Jank == nil {
				return fmt.Errorf("no jank stats recorded")
			}
			if run.Jank.JankyFrames > maxJanky {
				return fmt.Errorf("%d janky frames of %d total, want at most %d",
					run.Jank.JankyFrames, run.Jank.TotalFrames, maxJanky)
			}
			return nil
		},
	}
}

// RunsConsistent returns a whole-result assertion that every run captured
// the same number of snapshots for the named monitor. Useful for spotting
// repetitions that diverged from the rest.
func RunsConsistent(monitorName string) Assertion {
	return Assertion{
		Name:  fmt.Sprintf("%s_runs_consistent", monitorName),
		Scope: ScopeResult,
		CheckResult: func(runs []*Run) error {
			if len(runs) == 0 {
				return fmt.Errorf("no runs recorded")
			}
			want := traceLen(runs[0], monitorName)
			for _, run := range runs[1:] {
				if got := traceLen(run, monitorName); got != want {
					return fmt.Errorf("monitor %s: run %d captured %d snapshots, run %d captured %d",
						monitorName, runs[0].Repetition, want, run.Repetition, got)
				}
			}
			return nil
		},
	}
}

func traceLen(run *Run, monitorName string) int {
	if tr, ok := run.Traces[monitorName]; ok {
		return tr.Len()
	}
	return 0
}
