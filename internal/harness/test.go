package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/flick/internal/device"
	"github.com/roach88/flick/internal/monitor"
	"github.com/roach88/flick/internal/trace"
)

// Command is one phase step. Commands receive the test context explicitly
// and run strictly in registration order within their phase.
type Command func(ctx context.Context, tc *Context) error

// Context is the per-repetition state handed to phase commands.
type Context struct {
	// Device is the opaque device-interaction handle. The engine never
	// inspects it; commands drive it directly.
	Device device.Runner

	// Idle is the state-sync helper, nil when none is configured.
	Idle device.IdleWaiter

	// Repetition is the zero-based index of the current repetition.
	Repetition int

	// Logger is the execution logger.
	Logger *slog.Logger

	exec *Executor
}

// WaitForIdle blocks until the device is quiescent. A no-op when no idle
// waiter is configured.
func (tc *Context) WaitForIdle(ctx context.Context) error {
	if tc.Idle == nil {
		return nil
	}
	return tc.Idle.WaitForIdle(ctx)
}

// WithTag runs the given commands, then captures a named snapshot from
// every running monitor without stopping the overall capture. Only valid
// while a transition window is open.
func (tc *Context) WithTag(ctx context.Context, tag string, cmds ...Command) error {
	return tc.exec.Tag(ctx, tag, cmds...)
}

// Test is the user-facing bundle of one transition test: its immutable
// configuration plus the result of the most recent execution cycle.
//
// The configuration is fixed at Build time. The only mutable state is the
// result field, replaced wholesale by Execute and CleanUp; a single Test
// instance must be driven by one caller at a time.
type Test struct {
	name         string
	outputDir    string
	repetitions  int
	device       device.Runner
	idle         device.IdleWaiter
	monitors     []monitor.Monitor
	jank         monitor.JankMonitor
	setupOnce    []Command
	setup        []Command
	transition   []Command
	teardown     []Command
	teardownOnce []Command
	assertions   []Assertion
	executor     *Executor
	logger       *slog.Logger

	result *Result
}

// Name returns the test name.
func (t *Test) Name() string { return t.name }

// OutputDir returns the artifact output directory.
func (t *Test) OutputDir() string { return t.outputDir }

// Repetitions returns the configured repetition count.
func (t *Test) Repetitions() int { return t.repetitions }

// Result returns the result of the most recent execution cycle. Empty
// (never nil) before the first Execute.
func (t *Test) Result() *Result { return t.result }

// Execute runs the full execution cycle and stores the result. It fails
// fatally when the result carries a global error: the transition itself
// could not run, as distinct from an assertion failing.
func (t *Test) Execute(ctx context.Context) error {
	res := t.executor.Execute(ctx, t)
	t.result = res
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// CheckAssertions evaluates the configured assertions against the captured
// data. When nothing has run yet, it triggers Execute first. With onlyFlaky
// set, only the flaky subset is evaluated.
//
// Returns nil when every evaluated assertion passes; otherwise an
// *AssertionError carrying every failure. Idempotent between executions.
func (t *Test) CheckAssertions(ctx context.Context, onlyFlaky bool) error {
	if t.result.IsEmpty() {
		if err := t.Execute(ctx); err != nil {
			return err
		}
	}
	if err := t.result.CheckIsExecuted(); err != nil {
		return err
	}
	failures := t.result.CheckAssertions(t.assertions, onlyFlaky)
	if len(failures) > 0 {
		return &AssertionError{TestName: t.name, Failures: failures}
	}
	return nil
}

// CheckIsExecuted fails with an execution-state error unless the most
// recent cycle recorded at least one run and no global error.
func (t *Test) CheckIsExecuted() error {
	return t.result.CheckIsExecuted()
}

// WithTag runs the given commands mid-transition and captures a named
// snapshot from every running monitor. Only valid while a transition window
// is open, i.e. from inside a transition command.
func (t *Test) WithTag(ctx context.Context, tag string, cmds ...Command) error {
	return t.executor.Tag(ctx, tag, cmds...)
}

// CreateTag captures a named snapshot without running any commands first.
func (t *Test) CreateTag(ctx context.Context, tag string) error {
	return t.executor.Tag(ctx, tag)
}

// CleanUp deletes artifacts of runs without assertion failures, then
// replaces the result with a fresh empty one, returning the test to its
// not-executed state.
func (t *Test) CleanUp() error {
	err := t.result.CleanUp()
	t.result = NewResult(t.name, t.outputDir)
	return err
}

// Copy produces a new Test sharing the immutable configuration but with
// the assertion list replaced wholesale by the given assertions (empty when
// none are given) and the name replaced when newName is non-empty. The
// copy's result state starts fresh; mutating the copy never affects the
// original.
func (t *Test) Copy(newName string, assertions ...Assertion) *Test {
	clone := *t
	if newName != "" {
		clone.name = newName
	}
	clone.assertions = append([]Assertion(nil), assertions...)
	clone.result = NewResult(clone.name, clone.outputDir)
	return &clone
}

// discardLogger returns a logger that drops everything. Used when no
// logger is configured so execution stays quiet in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Builder assembles a Test. Each phase has its own registration method, so
// commands cannot end up in the wrong phase by accident; Build validates
// the configuration and freezes it.
type Builder struct {
	test Test
	errs []error
}

// NewBuilder starts a test configuration with the given name and device
// handle.
func NewBuilder(name string, dev device.Runner) *Builder {
	b := &Builder{}
	b.test.name = name
	b.test.device = dev
	b.test.repetitions = 1
	b.test.outputDir = "flick-out"
	return b
}

// OutputDir sets the artifact output directory.
func (b *Builder) OutputDir(dir string) *Builder {
	b.test.outputDir = dir
	return b
}

// Repeat sets the repetition count.
func (b *Builder) Repeat(n int) *Builder {
	b.test.repetitions = n
	return b
}

// IdleWaiter sets the state-sync helper available to commands.
func (b *Builder) IdleWaiter(w device.IdleWaiter) *Builder {
	b.test.idle = w
	return b
}

// Monitor adds a trace monitor. Monitor names must be unique within a test
// because traces and artifacts are keyed by them.
func (b *Builder) Monitor(m monitor.Monitor) *Builder {
	for _, existing := range b.test.monitors {
		if existing.Name() == m.Name() {
			b.errs = append(b.errs, fmt.Errorf("duplicate monitor name %q", m.Name()))
			return b
		}
	}
	b.test.monitors = append(b.test.monitors, m)
	return b
}

// JankMonitor sets the optional frame-jank monitor.
func (b *Builder) JankMonitor(m monitor.JankMonitor) *Builder {
	b.test.jank = m
	return b
}

// SetupOnce appends commands run before the first repetition only.
func (b *Builder) SetupOnce(cmds ...Command) *Builder {
	b.test.setupOnce = append(b.test.setupOnce, cmds...)
	return b
}

// Setup appends commands run before every repetition's transition.
func (b *Builder) Setup(cmds ...Command) *Builder {
	b.test.setup = append(b.test.setup, cmds...)
	return b
}

// Transition appends the commands that drive the transition under test.
// Monitors capture exactly this window.
func (b *Builder) Transition(cmds ...Command) *Builder {
	b.test.transition = append(b.test.transition, cmds...)
	return b
}

// Teardown appends commands run after every repetition's transition.
func (b *Builder) Teardown(cmds ...Command) *Builder {
	b.test.teardown = append(b.test.teardown, cmds...)
	return b
}

// TeardownOnce appends commands run after the final repetition only.
func (b *Builder) TeardownOnce(cmds ...Command) *Builder {
	b.test.teardownOnce = append(b.test.teardownOnce, cmds...)
	return b
}

// Assert adds assertions to evaluate after execution.
func (b *Builder) Assert(assertions ...Assertion) *Builder {
	b.test.assertions = append(b.test.assertions, assertions...)
	return b
}

// Logger sets the execution logger. Defaults to a silent logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.test.logger = l
	return b
}

// Executor replaces the default executor.
func (b *Builder) Executor(e *Executor) *Builder {
	b.test.executor = e
	return b
}

// Build validates the configuration and returns the immutable test.
func (b *Builder) Build() (*Test, error) {
	t := b.test

	if normalized, err := trace.ValidateTestName(t.name); err != nil {
		b.errs = append(b.errs, err)
	} else {
		t.name = normalized
	}
	if t.device == nil {
		b.errs = append(b.errs, fmt.Errorf("device is required"))
	}
	if t.repetitions < 1 {
		b.errs = append(b.errs, fmt.Errorf("repetitions must be at least 1, got %d", t.repetitions))
	}
	if len(t.transition) == 0 {
		b.errs = append(b.errs, fmt.Errorf("at least one transition command is required"))
	}
	for _, a := range t.assertions {
		if err := a.validate(); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid test configuration: %w", errors.Join(b.errs...))
	}

	if t.logger == nil {
		t.logger = discardLogger()
	}
	if t.executor == nil {
		t.executor = NewExecutor(t.logger)
	}
	t.result = NewResult(t.name, t.outputDir)
	return &t, nil
}
