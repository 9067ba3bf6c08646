package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/flick/internal/trace"
)

// Executor runs one full execution cycle of a test: ordered phases,
// repeated N times, with monitors started and stopped at the transition
// boundaries.
//
// An executor is driven by one caller at a time; the in-flight run state is
// a single field overwritten sequentially, never read concurrently with a
// write.
type Executor struct {
	logger *slog.Logger

	// current is the open transition window, non-nil only between monitor
	// start and monitor stop. Tagging operates on it.
	current *openWindow
}

// openWindow is the mutable state of an in-flight transition.
type openWindow struct {
	test *Test
	run  *Run
	tc   *Context
}

// NewExecutor creates an executor. A nil logger suppresses logging.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = discardLogger()
	}
	return &Executor{logger: logger}
}

// Execute runs the full cycle for the given test and returns a fresh
// result. The returned result carries a global error if any phase failed;
// in that case no further repetitions were attempted.
func (e *Executor) Execute(ctx context.Context, t *Test) *Result {
	res := NewResult(t.name, t.outputDir)

	if err := os.MkdirAll(t.outputDir, 0755); err != nil {
		res.Err = &ExecutionError{TestName: t.name, Repetition: -1, Err: fmt.Errorf("create output dir: %w", err)}
		return res
	}

	for i := 0; i < t.repetitions; i++ {
		run, err := e.runOnce(ctx, t, i)
		if run != nil {
			res.Runs = append(res.Runs, run)
		}
		if err != nil {
			res.Err = err
			e.logger.Error("execution aborted",
				"test", t.name,
				"repetition", i,
				"error", err,
			)
			return res
		}
		e.logger.Info("repetition completed",
			"test", t.name,
			"repetition", i,
			"monitors", len(t.monitors),
		)
	}
	return res
}

// runOnce executes a single repetition. The returned run is non-nil when
// the transition window was opened, even if a later phase failed, so that
// already-flushed traces stay inspectable.
func (e *Executor) runOnce(ctx context.Context, t *Test, repetition int) (*Run, error) {
	tc := &Context{
		Device:     t.device,
		Idle:       t.idle,
		Repetition: repetition,
		Logger:     e.logger,
		exec:       e,
	}

	if repetition == 0 {
		if err := e.runPhase(ctx, tc, t, PhaseSetupOnce, t.setupOnce); err != nil {
			return nil, err
		}
	}
	if err := e.runPhase(ctx, tc, t, PhaseSetup, t.setup); err != nil {
		return nil, err
	}

	run := newRun(repetition)
	if err := e.transitionWindow(ctx, t, tc, run); err != nil {
		run.Err = err
		return run, err
	}

	if err := e.runPhase(ctx, tc, t, PhaseTeardown, t.teardown); err != nil {
		run.Err = err
		return run, err
	}
	if repetition == t.repetitions-1 {
		if err := e.runPhase(ctx, tc, t, PhaseTeardownOnce, t.teardownOnce); err != nil {
			run.Err = err
			return run, err
		}
	}
	return run, nil
}

// transitionWindow starts the monitors, runs the transition commands, and
// guarantees the monitors are stopped and their artifacts flushed even when
// a transition command fails. The guarantee covers the transition phase
// only; setup and teardown failures never leave a window open.
func (e *Executor) transitionWindow(ctx context.Context, t *Test, tc *Context, run *Run) (err error) {
	if serr := e.startMonitors(ctx, t, run.Repetition); serr != nil {
		return serr
	}
	e.current = &openWindow{test: t, run: run, tc: tc}

	defer func() {
		e.current = nil
		stopErr := e.stopAndFlush(ctx, t, run)
		if err == nil {
			err = stopErr
		}
	}()

	return e.runPhase(ctx, tc, t, PhaseTransition, t.transition)
}

// startMonitors starts every trace monitor and the optional jank monitor.
// On failure, already-started monitors are stopped best-effort so the next
// repetition sees them in a clean state.
func (e *Executor) startMonitors(ctx context.Context, t *Test, repetition int) error {
	var started []int
	for i, m := range t.monitors {
		if err := m.Start(ctx); err != nil {
			for _, j := range started {
				_, _ = t.monitors[j].Stop(ctx)
			}
			return &ExecutionError{TestName: t.name, Phase: PhaseMonitorStart, Repetition: repetition,
				Err: fmt.Errorf("monitor %s: %w", m.Name(), err)}
		}
		started = append(started, i)
	}
	if t.jank != nil {
		if err := t.jank.Start(ctx); err != nil {
			for _, j := range started {
				_, _ = t.monitors[j].Stop(ctx)
			}
			return &ExecutionError{TestName: t.name, Phase: PhaseMonitorStart, Repetition: repetition,
				Err: fmt.Errorf("jank monitor: %w", err)}
		}
	}
	return nil
}

// stopAndFlush stops every monitor, materializes each trace into an
// artifact named {testName}_{repetition}, and records the jank count.
// Every monitor is stopped even when an earlier one fails.
func (e *Executor) stopAndFlush(ctx context.Context, t *Test, run *Run) error {
	var errs []error
	for _, m := range t.monitors {
		tr, err := m.Stop(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", m.Name(), err))
			continue
		}
		run.Traces[m.Name()] = tr
		path, err := trace.WriteArtifact(t.outputDir, t.name, run.Repetition, "", tr)
		if err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", m.Name(), err))
			continue
		}
		run.Artifacts = append(run.Artifacts, path)
	}
	if t.jank != nil {
		stat, err := t.jank.Stop(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("jank monitor: %w", err))
		} else {
			run.Jank = &stat
		}
	}
	if len(errs) > 0 {
		return &ExecutionError{TestName: t.name, Phase: PhaseMonitorStop, Repetition: run.Repetition,
			Err: errors.Join(errs...)}
	}
	return nil
}

// Tag captures a named point-in-time snapshot during an open transition
// window. The given commands run first, then every running monitor emits a
// snapshot; the full-window capture keeps running throughout. The tag name
// is validated before any command runs, so a transition is never partially
// executed for an artifact that cannot be named.
func (e *Executor) Tag(ctx context.Context, tag string, cmds ...Command) error {
	w := e.current
	if w == nil {
		return &ExecutionError{TestName: "", Phase: PhaseTag, Repetition: -1,
			Err: errors.New("no transition in flight")}
	}
	t, run := w.test, w.run

	normalized, err := trace.ValidateTag(tag)
	if err != nil {
		return &ExecutionError{TestName: t.name, Phase: PhaseTag, Repetition: run.Repetition, Err: err}
	}
	if _, exists := run.Tags[normalized]; exists {
		return &ExecutionError{TestName: t.name, Phase: PhaseTag, Repetition: run.Repetition,
			Err: fmt.Errorf("tag %q already captured in this run", normalized)}
	}

	for i, cmd := range cmds {
		if err := cmd(ctx, w.tc); err != nil {
			return &ExecutionError{TestName: t.name, Phase: PhaseTag, Repetition: run.Repetition,
				Err: fmt.Errorf("tag %q command %d: %w", normalized, i, err)}
		}
	}

	snaps := make(map[string]*trace.Trace, len(t.monitors))
	for _, m := range t.monitors {
		tr, err := m.Snapshot(ctx, normalized)
		if err != nil {
			return &ExecutionError{TestName: t.name, Phase: PhaseTag, Repetition: run.Repetition,
				Err: fmt.Errorf("monitor %s: %w", m.Name(), err)}
		}
		path, err := trace.WriteArtifact(t.outputDir, t.name, run.Repetition, normalized, tr)
		if err != nil {
			return &ExecutionError{TestName: t.name, Phase: PhaseTag, Repetition: run.Repetition,
				Err: fmt.Errorf("monitor %s: %w", m.Name(), err)}
		}
		run.Artifacts = append(run.Artifacts, path)
		snaps[m.Name()] = tr
	}
	run.Tags[normalized] = snaps

	e.logger.Info("tag captured",
		"test", t.name,
		"repetition", run.Repetition,
		"tag", normalized,
	)
	return nil
}

// runPhase executes one phase's command list in order, stopping at the
// first failure.
func (e *Executor) runPhase(ctx context.Context, tc *Context, t *Test, phase Phase, cmds []Command) error {
	for i, cmd := range cmds {
		if err := cmd(ctx, tc); err != nil {
			return &ExecutionError{TestName: t.name, Phase: phase, Repetition: tc.Repetition,
				Err: fmt.Errorf("command %d: %w", i, err)}
		}
		e.logger.Debug("phase command completed",
			"test", t.name,
			"phase", string(phase),
			"repetition", tc.Repetition,
			"command", i,
		)
	}
	return nil
}
