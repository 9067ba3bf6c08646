package monitor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flick/internal/monitor"
	"github.com/roach88/flick/internal/testutil"
)

// TestNewCommandMonitor_Validation tests constructor argument checks.
func TestNewCommandMonitor_Validation(t *testing.T) {
	dev := &testutil.FakeDevice{}

	_, err := monitor.NewCommandMonitor("bad name", dev, "state")
	assert.Error(t, err)

	_, err = monitor.NewCommandMonitor("screen", nil, "state")
	assert.Error(t, err)

	_, err = monitor.NewCommandMonitor("screen", dev)
	assert.Error(t, err)
}

// TestCommandMonitor_Lifecycle tests the start/snapshot/stop capture window.
func TestCommandMonitor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	dev := &testutil.FakeDevice{Responses: map[string]string{"state": "screen-a"}}

	m, err := monitor.NewCommandMonitor("screen", dev, "state")
	require.NoError(t, err)
	m.WithClock(nil) // deterministic traces

	require.NoError(t, m.Start(ctx))

	snap, err := m.Snapshot(ctx, "mid")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "mid", snap.Snapshots[0].Label)
	assert.Equal(t, "screen-a", snap.Snapshots[0].State["output"])

	tr, err := m.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, tr.Len())
	assert.Equal(t, "screen", tr.Monitor)
	assert.Equal(t, "start", tr.Snapshots[0].Label)
	assert.Equal(t, "mid", tr.Snapshots[1].Label)
	assert.Equal(t, "stop", tr.Snapshots[2].Label)
	for i, snap := range tr.Snapshots {
		assert.Equal(t, int64(i+1), snap.Seq)
		assert.Zero(t, snap.CapturedAtNs)
	}

	// One capture per snapshot.
	assert.Equal(t, []string{"state", "state", "state"}, dev.Calls)
}

// TestCommandMonitor_SequenceResetsPerWindow tests seq restarts each Start.
func TestCommandMonitor_SequenceResetsPerWindow(t *testing.T) {
	ctx := context.Background()
	dev := &testutil.FakeDevice{}

	m, err := monitor.NewCommandMonitor("screen", dev, "state")
	require.NoError(t, err)
	m.WithClock(nil)

	require.NoError(t, m.Start(ctx))
	_, err = m.Stop(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx))
	tr, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.Snapshots[0].Seq)
}

// TestCommandMonitor_StateErrors tests double start and use outside a window.
func TestCommandMonitor_StateErrors(t *testing.T) {
	ctx := context.Background()
	m, err := monitor.NewCommandMonitor("screen", &testutil.FakeDevice{}, "state")
	require.NoError(t, err)

	_, err = m.Stop(ctx)
	assert.Error(t, err)
	_, err = m.Snapshot(ctx, "mid")
	assert.Error(t, err)

	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx))
}

// TestCommandMonitor_CaptureFailureOnStart tests a failed initial capture
// leaves the monitor stopped.
func TestCommandMonitor_CaptureFailureOnStart(t *testing.T) {
	ctx := context.Background()
	dev := &testutil.FakeDevice{FailOn: "state"}

	m, err := monitor.NewCommandMonitor("screen", dev, "state")
	require.NoError(t, err)

	require.Error(t, m.Start(ctx))

	// The window never opened, so a fresh Start must be possible.
	dev.FailOn = ""
	require.NoError(t, m.Start(ctx))
}

// TestCommandMonitor_WallClockTimestamps tests the default clock stamps
// snapshots.
func TestCommandMonitor_WallClockTimestamps(t *testing.T) {
	ctx := context.Background()
	m, err := monitor.NewCommandMonitor("screen", &testutil.FakeDevice{}, "state")
	require.NoError(t, err)

	require.NoError(t, m.Start(ctx))
	tr, err := m.Stop(ctx)
	require.NoError(t, err)
	assert.Positive(t, tr.Snapshots[0].CapturedAtNs)
}
