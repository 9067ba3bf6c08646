// Package testutil provides deterministic fakes for harness tests:
// a logical clock, scripted monitors, and a recording device.
package testutil

import (
	"context"
	"fmt"
	"strings"
)

// FakeDevice records every command sent to it and answers from a canned
// response table. Unmatched commands succeed with empty output.
type FakeDevice struct {
	// Responses maps a space-joined command line to its output.
	Responses map[string]string

	// FailOn makes any command line containing the substring fail.
	FailOn string

	// Calls records every command line in invocation order.
	Calls []string
}

// Run implements device.Runner.
func (d *FakeDevice) Run(_ context.Context, args ...string) (string, error) {
	line := strings.Join(args, " ")
	d.Calls = append(d.Calls, line)
	if d.FailOn != "" && strings.Contains(line, d.FailOn) {
		return "", fmt.Errorf("device command failed: %s", line)
	}
	if d.Responses != nil {
		if out, ok := d.Responses[line]; ok {
			return out, nil
		}
	}
	return "", nil
}

// FakeIdleWaiter counts WaitForIdle calls and optionally fails.
type FakeIdleWaiter struct {
	Waits int
	Err   error
}

// WaitForIdle implements device.IdleWaiter.
func (w *FakeIdleWaiter) WaitForIdle(context.Context) error {
	w.Waits++
	return w.Err
}
