// Package monitor defines the trace-capturing capabilities consumed by the
// harness, plus command-driven implementations used by the CLI.
//
// A Monitor is scoped to one capture window per repetition: Start opens the
// window, Stop closes it and materializes the trace, and Snapshot emits a
// named point-in-time capture without interrupting the window.
package monitor

import (
	"context"

	"github.com/roach88/flick/internal/trace"
)

// Monitor captures a trace around a code region.
// Implementations must tolerate being started and stopped once per run.
type Monitor interface {
	// Name identifies the monitor. Used to key traces within a run and to
	// name artifact files, so it must be a valid path component.
	Name() string

	// Start opens a capture window. Calling Start on an already running
	// monitor is an error.
	Start(ctx context.Context) error

	// Stop closes the capture window and returns the captured trace.
	Stop(ctx context.Context) (*trace.Trace, error)

	// Snapshot captures a named point-in-time observation while the window
	// is open. The full-window trace is unaffected.
	Snapshot(ctx context.Context, tag string) (*trace.Trace, error)
}

// JankStat is the frame accounting reported by a jank monitor over one
// capture window.
type JankStat struct {
	TotalFrames int64 `json:"total_frames"`
	JankyFrames int64 `json:"janky_frames"`
}

// JankMonitor counts rendered and janky frames around a code region.
type JankMonitor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (JankStat, error)
}
