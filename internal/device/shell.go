package device

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellDevice drives a device through an external shell command.
// Every Run call executes the configured prefix followed by the given
// arguments as a single subprocess, e.g. prefix ["adb", "shell"] turns
// Run(ctx, "input", "keyevent", "3") into `adb shell input keyevent 3`.
type ShellDevice struct {
	prefix []string
}

// NewShellDevice creates a shell-backed device handle.
// The prefix must name the executable and any fixed leading arguments.
func NewShellDevice(prefix ...string) (*ShellDevice, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("shell prefix must not be empty")
	}
	return &ShellDevice{prefix: prefix}, nil
}

// Run executes prefix+args and returns combined stdout/stderr.
// A non-zero exit status is returned as an error together with the
// captured output for diagnostics.
func (d *ShellDevice) Run(ctx context.Context, args ...string) (string, error) {
	full := append(append([]string{}, d.prefix...), args...)
	cmd := exec.CommandContext(ctx, full[0], full[1:]...)
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err != nil {
		return output, fmt.Errorf("run %q: %w (output: %s)", strings.Join(full, " "), err, strings.TrimSpace(output))
	}
	return output, nil
}

// ProbeIdleWaiter detects idleness by polling a probe command.
// The device is considered idle as soon as the probe succeeds. The probe
// is retried up to Attempts times with Interval between attempts.
type ProbeIdleWaiter struct {
	Device   Runner
	Probe    []string
	Attempts int
	Interval time.Duration
}

// WaitForIdle blocks until the probe succeeds, the attempts are exhausted,
// or the context is canceled.
func (w *ProbeIdleWaiter) WaitForIdle(ctx context.Context) error {
	if w.Device == nil || len(w.Probe) == 0 {
		return nil
	}
	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}
	interval := w.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Device.Run(ctx, w.Probe...); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("device not idle after %d attempts: %w", attempts, lastErr)
}
