package harness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flick/internal/testutil"
)

// TestBuilder_CollectsAllErrors tests Build reports every configuration
// problem at once.
func TestBuilder_CollectsAllErrors(t *testing.T) {
	_, err := NewBuilder("bad name", nil).Repeat(0).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid test name")
	assert.Contains(t, err.Error(), "device is required")
	assert.Contains(t, err.Error(), "repetitions must be at least 1")
	assert.Contains(t, err.Error(), "transition command is required")
}

// TestBuilder_RejectsInvalidAssertion tests assertion validation at build
// time.
func TestBuilder_RejectsInvalidAssertion(t *testing.T) {
	_, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		Transition(record(new([]string), "go")).
		Assert(Assertion{Name: "broken", Scope: ScopeRun}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires CheckRun")
}

// TestBuilder_RejectsDuplicateMonitorNames tests monitor names must be
// unique.
func TestBuilder_RejectsDuplicateMonitorNames(t *testing.T) {
	_, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		Monitor(testutil.NewScriptedMonitor("screen")).
		Monitor(testutil.NewScriptedMonitor("screen")).
		Transition(record(new([]string), "go")).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate monitor name "screen"`)
}

// TestBuilder_Defaults tests the documented defaults.
func TestBuilder_Defaults(t *testing.T) {
	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "app_launch", test.Name())
	assert.Equal(t, "flick-out", test.OutputDir())
	assert.Equal(t, 1, test.Repetitions())
	assert.True(t, test.Result().IsEmpty())
}

// TestCheckAssertions_LazyExecute tests the first assertion check triggers
// execution.
func TestCheckAssertions_LazyExecute(t *testing.T) {
	screen := testutil.NewScriptedMonitor("screen")

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Monitor(screen).
		Transition(record(new([]string), "go")).
		Assert(TraceNotEmpty("screen")).
		Build()
	require.NoError(t, err)

	require.NoError(t, test.CheckAssertions(context.Background(), false))
	assert.Equal(t, 1, screen.Starts, "assertion check must have executed the test")

	// A second check reuses the stored result.
	require.NoError(t, test.CheckAssertions(context.Background(), false))
	assert.Equal(t, 1, screen.Starts)
}

// TestCheckAssertions_JoinsFailureMessages tests the error message carries
// one line per failure.
func TestCheckAssertions_JoinsFailureMessages(t *testing.T) {
	alwaysFails := func(name string) Assertion {
		return Assertion{Name: name, CheckRun: func(*Run) error { return errors.New("rejected") }}
	}

	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Repeat(2).
		Transition(record(new([]string), "go")).
		Assert(alwaysFails("first"), alwaysFails("second")).
		Build()
	require.NoError(t, err)

	err = test.CheckAssertions(context.Background(), false)
	require.Error(t, err)
	require.True(t, IsAssertionError(err))

	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Len(t, aerr.Failures, 4) // 2 assertions x 2 runs

	lines := strings.Split(err.Error(), "\n")
	assert.Len(t, lines, 5) // header plus one line per failure
	assert.Contains(t, lines[0], "4 assertion failure(s)")
	assert.Contains(t, lines[1], "assertion first (run 0)")
}

// TestCheckAssertions_ExecutionFailureIsNotAssertionFailure tests the two
// failure classes stay disjoint.
func TestCheckAssertions_ExecutionFailureIsNotAssertionFailure(t *testing.T) {
	test, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Transition(failOnRepetition(0)).
		Assert(TraceNotEmpty("screen")).
		Build()
	require.NoError(t, err)

	err = test.CheckAssertions(context.Background(), false)
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
	assert.False(t, IsAssertionError(err))
}

// TestCleanUp_ResetsToNotExecuted tests CleanUp returns the test to its
// initial state.
func TestCleanUp_ResetsToNotExecuted(t *testing.T) {
	test := executedTest(t, 1)
	require.NoError(t, test.CheckIsExecuted())

	require.NoError(t, test.CleanUp())
	assert.True(t, test.Result().IsEmpty())
	assert.Error(t, test.CheckIsExecuted())
}

// TestCopy_IsolatesResultAndAssertions tests a copy shares configuration
// but not mutable state.
func TestCopy_IsolatesResultAndAssertions(t *testing.T) {
	original, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Transition(record(new([]string), "go")).
		Assert(TraceNotEmpty("screen")).
		Build()
	require.NoError(t, err)
	require.NoError(t, original.Execute(context.Background()))

	clone := original.Copy("app_relaunch", TagPresent("menu_open"))

	assert.Equal(t, "app_relaunch", clone.Name())
	assert.Equal(t, original.OutputDir(), clone.OutputDir())
	assert.True(t, clone.Result().IsEmpty(), "copy must start unexecuted")
	assert.False(t, original.Result().IsEmpty(), "original result must be untouched")

	// The copy carries only the replacement assertions.
	require.Len(t, clone.assertions, 1)
	assert.Equal(t, "tag_menu_open_present", clone.assertions[0].Name)
	require.Len(t, original.assertions, 1)
	assert.Equal(t, "screen_trace_not_empty", original.assertions[0].Name)

	// Copy without arguments drops the assertions and keeps the name.
	bare := original.Copy("")
	assert.Equal(t, "app_launch", bare.Name())
	assert.Empty(t, bare.assertions)
}

// TestCopy_ExecutionDoesNotAffectOriginal tests executing a copy leaves the
// original's result alone.
func TestCopy_ExecutionDoesNotAffectOriginal(t *testing.T) {
	original, err := NewBuilder("app_launch", &testutil.FakeDevice{}).
		OutputDir(t.TempDir()).
		Transition(record(new([]string), "go")).
		Build()
	require.NoError(t, err)

	clone := original.Copy("warm_launch")
	require.NoError(t, clone.Execute(context.Background()))

	assert.True(t, original.Result().IsEmpty())
	assert.False(t, clone.Result().IsEmpty())
}
