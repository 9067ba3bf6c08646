package testutil

import (
	"context"
	"fmt"

	"github.com/roach88/flick/internal/monitor"
	"github.com/roach88/flick/internal/trace"
)

// ScriptedMonitor is a deterministic in-memory monitor.
//
// It records a snapshot on Start, on every tagged Snapshot call, and on
// Stop, using a DeterministicClock for sequence numbers and no wall-clock
// timestamps. Error injection fields allow exercising the executor's
// failure paths.
type ScriptedMonitor struct {
	MonitorName string
	Clock       *DeterministicClock

	// StartErr, StopErr, and SnapshotErr inject failures.
	StartErr    error
	StopErr     error
	SnapshotErr error

	// Starts and Stops count lifecycle transitions across runs.
	Starts int
	Stops  int

	running bool
	current *trace.Trace
}

// NewScriptedMonitor creates a scripted monitor with its own clock.
func NewScriptedMonitor(name string) *ScriptedMonitor {
	return &ScriptedMonitor{MonitorName: name, Clock: NewDeterministicClock()}
}

// Name implements monitor.Monitor.
func (m *ScriptedMonitor) Name() string { return m.MonitorName }

// Start implements monitor.Monitor.
func (m *ScriptedMonitor) Start(context.Context) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.running {
		return fmt.Errorf("monitor %s: already running", m.MonitorName)
	}
	m.running = true
	m.Starts++
	m.Clock.Reset()
	m.current = &trace.Trace{Monitor: m.MonitorName}
	m.record(m.current, "start")
	return nil
}

// Stop implements monitor.Monitor.
func (m *ScriptedMonitor) Stop(context.Context) (*trace.Trace, error) {
	if !m.running {
		return nil, fmt.Errorf("monitor %s: not running", m.MonitorName)
	}
	m.running = false
	m.Stops++
	if m.StopErr != nil {
		m.current = nil
		return nil, m.StopErr
	}
	tr := m.current
	m.record(tr, "stop")
	m.current = nil
	return tr, nil
}

// Snapshot implements monitor.Monitor.
func (m *ScriptedMonitor) Snapshot(_ context.Context, tag string) (*trace.Trace, error) {
	if !m.running {
		return nil, fmt.Errorf("monitor %s: not running", m.MonitorName)
	}
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	m.record(m.current, tag)
	last := m.current.Snapshots[m.current.Len()-1]
	return &trace.Trace{Monitor: m.MonitorName, Snapshots: []trace.Snapshot{last}}, nil
}

// Running reports whether a capture window is currently open.
func (m *ScriptedMonitor) Running() bool { return m.running }

func (m *ScriptedMonitor) record(tr *trace.Trace, label string) {
	tr.Append(trace.Snapshot{
		Seq:   m.Clock.Next(),
		Label: label,
		State: map[string]string{"label": label},
	})
}

// ScriptedJankMonitor reports a fixed jank stat.
type ScriptedJankMonitor struct {
	Stat     monitor.JankStat
	StartErr error
	StopErr  error
	Starts   int
	Stops    int
}

// Start implements monitor.JankMonitor.
func (m *ScriptedJankMonitor) Start(context.Context) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	m.Starts++
	return nil
}

// Stop implements monitor.JankMonitor.
func (m *ScriptedJankMonitor) Stop(context.Context) (monitor.JankStat, error) {
	m.Stops++
	if m.StopErr != nil {
		return monitor.JankStat{}, m.StopErr
	}
	return m.Stat, nil
}
