package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/flick/internal/device"
	"github.com/roach88/flick/internal/trace"
)

// CommandMonitor captures device state by running a capture command through
// the device handle. A snapshot is taken when the window opens, on every
// tagged snapshot request, and when the window closes, so the resulting
// trace spans the whole capture region.
type CommandMonitor struct {
	name    string
	dev     device.Runner
	capture []string

	// now supplies snapshot timestamps. Overridable for deterministic
	// traces in tests; nil means wall clock.
	now func() int64

	running bool
	seq     int64
	current *trace.Trace
}

// NewCommandMonitor creates a monitor that snapshots the output of the given
// capture command.
func NewCommandMonitor(name string, dev device.Runner, capture ...string) (*CommandMonitor, error) {
	if _, err := trace.ValidateTestName(name); err != nil {
		return nil, fmt.Errorf("monitor name: %w", err)
	}
	if dev == nil {
		return nil, fmt.Errorf("monitor %s: device is required", name)
	}
	if len(capture) == 0 {
		return nil, fmt.Errorf("monitor %s: capture command is required", name)
	}
	return &CommandMonitor{name: name, dev: dev, capture: capture, now: WallClock}, nil
}

// WithClock replaces the wall clock used for snapshot timestamps.
// Passing nil disables timestamps, which keeps traces byte-deterministic.
func (m *CommandMonitor) WithClock(now func() int64) *CommandMonitor {
	m.now = now
	return m
}

// Name returns the monitor name.
func (m *CommandMonitor) Name() string { return m.name }

// Start opens the capture window and records the initial snapshot.
func (m *CommandMonitor) Start(ctx context.Context) error {
	if m.running {
		return fmt.Errorf("monitor %s: already running", m.name)
	}
	m.running = true
	m.seq = 0
	m.current = &trace.Trace{Monitor: m.name}
	if err := m.observe(ctx, "start", m.current); err != nil {
		m.running = false
		m.current = nil
		return err
	}
	return nil
}

// Stop records the final snapshot, closes the window, and returns the trace.
func (m *CommandMonitor) Stop(ctx context.Context) (*trace.Trace, error) {
	if !m.running {
		return nil, fmt.Errorf("monitor %s: not running", m.name)
	}
	tr := m.current
	err := m.observe(ctx, "stop", tr)
	m.running = false
	m.current = nil
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// Snapshot captures a tagged observation. The observation is recorded both
// in the full-window trace and in the returned single-snapshot trace.
func (m *CommandMonitor) Snapshot(ctx context.Context, tag string) (*trace.Trace, error) {
	if !m.running {
		return nil, fmt.Errorf("monitor %s: not running", m.name)
	}
	if err := m.observe(ctx, tag, m.current); err != nil {
		return nil, err
	}
	last := m.current.Snapshots[len(m.current.Snapshots)-1]
	return &trace.Trace{Monitor: m.name, Snapshots: []trace.Snapshot{last}}, nil
}

func (m *CommandMonitor) observe(ctx context.Context, label string, tr *trace.Trace) error {
	out, err := m.dev.Run(ctx, m.capture...)
	if err != nil {
		return fmt.Errorf("monitor %s: capture failed: %w", m.name, err)
	}
	m.seq++
	snap := trace.Snapshot{
		Seq:   m.seq,
		Label: label,
		State: map[string]string{"output": out},
	}
	if m.now != nil {
		snap.CapturedAtNs = m.now()
	}
	tr.Append(snap)
	return nil
}

// WallClock is the default timestamp source for command monitors.
func WallClock() int64 { return time.Now().UnixNano() }
