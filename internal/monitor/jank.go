package monitor

import (
	"context"
	"fmt"

	"github.com/roach88/flick/internal/device"
)

// CommandJankMonitor derives a frame-jank count from a counter command.
// The counter command must print two integers, total frames and janky
// frames, as cumulative values. The stat reported by Stop is the delta
// between the stop and start readings.
type CommandJankMonitor struct {
	dev     device.Runner
	counter []string

	running bool
	start   JankStat
}

// NewCommandJankMonitor creates a jank monitor backed by a counter command.
func NewCommandJankMonitor(dev device.Runner, counter ...string) (*CommandJankMonitor, error) {
	if dev == nil {
		return nil, fmt.Errorf("jank monitor: device is required")
	}
	if len(counter) == 0 {
		return nil, fmt.Errorf("jank monitor: counter command is required")
	}
	return &CommandJankMonitor{dev: dev, counter: counter}, nil
}

// Start reads the baseline counter values.
func (m *CommandJankMonitor) Start(ctx context.Context) error {
	if m.running {
		return fmt.Errorf("jank monitor: already running")
	}
	stat, err := m.read(ctx)
	if err != nil {
		return err
	}
	m.start = stat
	m.running = true
	return nil
}

// Stop reads the counter again and returns the delta since Start.
func (m *CommandJankMonitor) Stop(ctx context.Context) (JankStat, error) {
	if !m.running {
		return JankStat{}, fmt.Errorf("jank monitor: not running")
	}
	m.running = false
	stat, err := m.read(ctx)
	if err != nil {
		return JankStat{}, err
	}
	return JankStat{
		TotalFrames: stat.TotalFrames - m.start.TotalFrames,
		JankyFrames: stat.JankyFrames - m.start.JankyFrames,
	}, nil
}

func (m *CommandJankMonitor) read(ctx context.Context) (JankStat, error) {
	out, err := m.dev.Run(ctx, m.counter...)
	if err != nil {
		return JankStat{}, fmt.Errorf("jank monitor: counter failed: %w", err)
	}
	var stat JankStat
	if _, err := fmt.Sscanf(out, "%d %d", &stat.TotalFrames, &stat.JankyFrames); err != nil {
		return JankStat{}, fmt.Errorf("jank monitor: cannot parse counter output %q: %w", out, err)
	}
	return stat, nil
}
