package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flick/internal/monitor"
	"github.com/roach88/flick/internal/testutil"
)

// record returns a command that appends label to log.
func record(log *[]string, label string) Command {
	return func(ctx context.Context, tc *Context) error {
		*log = append(*log, label)
		return nil
	}
}

// failOnRepetition returns a command that fails on the given repetition.
func failOnRepetition(rep int) Command {
	return func(ctx context.Context, tc *Context) error {
		if tc.Repetition == rep {
			return fmt.Errorf("boom at repetition %d", rep)
		}
		return nil
	}
}

// TestExecute_RunsAllRepetitions tests the full cycle: every repetition
// produces one run with a flushed trace per monitor.
func TestExecute_RunsAllRepetitions(t *testing.T) {
	dev := &testutil.FakeDevice{}
	screen := testutil.NewScriptedMonitor("screen")
	logcat := testutil.NewScriptedMonitor("logcat")
	dir := t.TempDir()

	test, err := NewBuilder("app_launch", dev).
		OutputDir(dir).
		Repeat(3).
		Monitor(screen).
		Monitor(logcat).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.Execute(context.Background()))
	res := test.Result()

	require.Len(t, res.Runs, 3)
	require.NoError(t, res.Err)
	for i, run := range res.Runs {
		assert.Equal(t, i, run.Repetition)
		require.NoError(t, run.Err)
		require.Len(t, run.Traces, 2)
		assert.Equal(t, 2, run.Traces["screen"].Len()) // start + stop
		assert.Equal(t, 2, run.Traces["logcat"].Len())
		require.Len(t, run.Artifacts, 2)
		for _, path := range run.Artifacts {
			_, statErr := os.Stat(path)
			assert.NoError(t, statErr, "artifact %s should exist", path)
		}
	}

	assert.Equal(t, 3, screen.Starts)
	assert.Equal(t, 3, screen.Stops)
	assert.False(t, screen.Running())
	assert.Equal(t, 3, logcat.Stops)
}

// TestExecute_PhaseOrder tests the once/per-repetition phase sequencing.
func TestExecute_PhaseOrder(t *testing.T) {
	var log []string

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Repeat(2).
		SetupOnce(record(&log, "setup_once")).
		Setup(record(&log, "setup")).
		Transition(record(&log, "transition")).
		Teardown(record(&log, "teardown")).
		TeardownOnce(record(&log, "teardown_once")).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.Execute(context.Background()))

	assert.Equal(t, []string{
		"setup_once",
		"setup", "transition", "teardown",
		"setup", "transition", "teardown",
		"teardown_once",
	}, log)
}

// TestExecute_AbortsOnTransitionFailure tests execution stops at the first
// failing repetition and still records the partial run with its traces.
func TestExecute_AbortsOnTransitionFailure(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Repeat(3).
		Monitor(screen).
		Transition(failOnRepetition(1)).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)
	res := test.Result()

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, PhaseTransition, execErr.Phase)
	assert.Equal(t, 1, execErr.Repetition)
	assert.Equal(t, res.Err, err)

	// The failing repetition is recorded with its flushed trace; the third
	// repetition never ran.
	require.Len(t, res.Runs, 2)
	assert.NoError(t, res.Runs[0].Err)
	assert.Error(t, res.Runs[1].Err)
	assert.Equal(t, 2, res.Runs[1].Traces["screen"].Len())
	assert.Len(t, res.Runs[1].Artifacts, 1)

	// The window was closed despite the failure.
	assert.False(t, screen.Running())
	assert.Equal(t, 2, screen.Starts)
	assert.Equal(t, 2, screen.Stops)
}

// TestExecute_SetupFailureRecordsNoRun tests a setup failure aborts before
// a run is created.
func TestExecute_SetupFailureRecordsNoRun(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		Setup(failOnRepetition(0)).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, PhaseSetup, execErr.Phase)
	assert.Empty(t, test.Result().Runs)
	assert.Equal(t, 0, screen.Starts)
}

// TestExecute_MonitorStartFailureRollsBack tests that a failing monitor
// start stops the already-started monitors.
func TestExecute_MonitorStartFailureRollsBack(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")
	broken := testutil.NewScriptedMonitor("logcat")
	broken.StartErr = errors.New("no such buffer")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		Monitor(broken).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, PhaseMonitorStart, execErr.Phase)
	assert.Contains(t, execErr.Error(), "no such buffer")

	assert.False(t, screen.Running())
	assert.Equal(t, 1, screen.Starts)
	assert.Equal(t, 1, screen.Stops)
}

// TestExecute_JankStartFailureRollsBack tests the jank monitor failing to
// start also rolls back the trace monitors.
func TestExecute_JankStartFailureRollsBack(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")
	jank := &testutil.ScriptedJankMonitor{StartErr: errors.New("gfxinfo unavailable")}

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		JankMonitor(jank).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	require.Error(t, test.Execute(context.Background()))
	assert.False(t, screen.Running())
	assert.Equal(t, 1, screen.Stops)
}

// TestExecute_MonitorStopFailureStopsRemaining tests every monitor is
// stopped even when an earlier one fails to stop.
func TestExecute_MonitorStopFailureStopsRemaining(t *testing.T) {
	broken := testutil.NewScriptedMonitor("screen")
	broken.StopErr = errors.New("capture lost")
	logcat := testutil.NewScriptedMonitor("logcat")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(broken).
		Monitor(logcat).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, PhaseMonitorStop, execErr.Phase)
	assert.Contains(t, execErr.Error(), "capture lost")

	// The healthy monitor was stopped and its trace flushed.
	assert.Equal(t, 1, logcat.Stops)
	require.Len(t, test.Result().Runs, 1)
	assert.Equal(t, 2, test.Result().Runs[0].Traces["logcat"].Len())
}

// TestExecute_RecordsJankStats tests the jank delta lands on the run.
func TestExecute_RecordsJankStats(t *testing.T) {
	jank := &testutil.ScriptedJankMonitor{Stat: monitor.JankStat{TotalFrames: 120, JankyFrames: 3}}

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Repeat(2).
		JankMonitor(jank).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.Execute(context.Background()))
	for _, run := range test.Result().Runs {
		require.NotNil(t, run.Jank)
		assert.Equal(t, int64(120), run.Jank.TotalFrames)
		assert.Equal(t, int64(3), run.Jank.JankyFrames)
	}
	assert.Equal(t, 2, jank.Starts)
	assert.Equal(t, 2, jank.Stops)
}

// TestExecute_TeardownFailureKeepsRun tests a teardown failure still records
// the run with its captured traces.
func TestExecute_TeardownFailureKeepsRun(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		Transition(record(new([]string), "go")).
		Teardown(failOnRepetition(0)).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, PhaseTeardown, execErr.Phase)

	require.Len(t, test.Result().Runs, 1)
	assert.Error(t, test.Result().Runs[0].Err)
	assert.Equal(t, 2, test.Result().Runs[0].Traces["screen"].Len())
}

// TestTag_CapturesMidTransitionSnapshot tests tagging snapshots every
// monitor without closing the window.
func TestTag_CapturesMidTransitionSnapshot(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")
	dir := t.TempDir()
	var log []string

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(dir).
		Monitor(screen).
		Transition(func(ctx context.Context, tc *Context) error {
			return tc.WithTag(ctx, "menu_open", record(&log, "inside_tag"))
		}).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.Execute(context.Background()))
	run := test.Result().Runs[0]

	assert.Equal(t, []string{"inside_tag"}, log)

	// Tagged snapshot recorded both standalone and in the full trace.
	require.Contains(t, run.Tags, "menu_open")
	snap := run.Tags["menu_open"]["screen"]
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "menu_open", snap.Snapshots[0].Label)
	assert.Equal(t, 3, run.Traces["screen"].Len()) // start, tag, stop

	// Tagged artifact written alongside the full-run artifact.
	require.Len(t, run.Artifacts, 2)
	tagged := filepath.Join(dir, "app_launch_0_menu_open.screen.trace")
	assert.Contains(t, run.Artifacts, tagged)
	_, statErr := os.Stat(tagged)
	assert.NoError(t, statErr)
}

// TestTag_InvalidNameFailsBeforeCommands tests tag validation happens
// before any tag command runs.
func TestTag_InvalidNameFailsBeforeCommands(t *testing.T) {
	var log []string

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(testutil.NewScriptedMonitor("screen")).
		Transition(func(ctx context.Context, tc *Context) error {
			return tc.WithTag(ctx, "bad tag", record(&log, "must_not_run"))
		}).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tag")
	assert.Empty(t, log, "tag commands must not run for an invalid tag name")
}

// TestTag_DuplicateRejected tests a tag name can be captured once per run.
func TestTag_DuplicateRejected(t *testing.T) {
	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(testutil.NewScriptedMonitor("screen")).
		Transition(func(ctx context.Context, tc *Context) error {
			if err := tc.WithTag(ctx, "mid"); err != nil {
				return err
			}
			return tc.WithTag(ctx, "mid")
		}).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tag "mid" already captured`)
}

// TestTag_OutsideTransitionWindow tests tagging without an open window fails.
func TestTag_OutsideTransitionWindow(t *testing.T) {
	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	err = test.CreateTag(context.Background(), "mid")
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
	assert.Contains(t, err.Error(), "no transition in flight")
}

// TestTag_SnapshotFailureFailsTransition tests a monitor snapshot failure
// surfaces as a tag-phase execution error.
func TestTag_SnapshotFailureFailsTransition(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")
	screen.SnapshotErr = errors.New("device disconnected")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		Transition(func(ctx context.Context, tc *Context) error {
			return tc.WithTag(ctx, "mid")
		}).
		Build()
	require.NoError(t, err)

	err = test.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device disconnected")
	assert.False(t, screen.Running(), "window must be closed after the failure")
}

// TestContext_WaitForIdle tests the idle waiter is reachable from commands
// and a missing waiter is a no-op.
func TestContext_WaitForIdle(t *testing.T) {
	waiter := &testutil.FakeIdleWaiter{}

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Repeat(2).
		IdleWaiter(waiter).
		Transition(func(ctx context.Context, tc *Context) error {
			return tc.WaitForIdle(ctx)
		}).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.Execute(context.Background()))
	assert.Equal(t, 2, waiter.Waits)

	tc := &Context{}
	assert.NoError(t, tc.WaitForIdle(context.Background()))
}
