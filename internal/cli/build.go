package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/flick/internal/device"
	"github.com/roach88/flick/internal/harness"
	"github.com/roach88/flick/internal/monitor"
)

// BuildTest constructs a harness test from a validated scenario.
func BuildTest(s *Scenario, logger *slog.Logger) (*harness.Test, error) {
	dev, err := device.NewShellDevice(s.Device.Shell...)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}

	b := harness.NewBuilder(s.Name, dev).
		OutputDir(s.OutputDir).
		Repeat(s.Repetitions).
		Logger(logger)

	if s.Device.IdleProbe != "" {
		b.IdleWaiter(&device.ProbeIdleWaiter{
			Device:   dev,
			Probe:    []string{s.Device.IdleProbe},
			Attempts: s.Device.IdleAttempts,
			Interval: time.Duration(s.Device.IdleIntervalMs) * time.Millisecond,
		})
	}

	for _, mc := range s.Monitors {
		m, err := monitor.NewCommandMonitor(mc.Name, dev, mc.Capture)
		if err != nil {
			return nil, err
		}
		b.Monitor(m)
	}
	if s.Jank != nil {
		jm, err := monitor.NewCommandJankMonitor(dev, s.Jank.Counter)
		if err != nil {
			return nil, err
		}
		b.JankMonitor(jm)
	}

	b.SetupOnce(shellCommands(s.SetupOnce)...)
	b.Setup(shellCommands(s.Setup)...)
	b.Transition(transitionCommands(s.Transition)...)
	b.Teardown(shellCommands(s.Teardown)...)
	b.TeardownOnce(shellCommands(s.TeardownOnce)...)

	for i, ac := range s.Assertions {
		a, err := compileAssertion(ac)
		if err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		}
		b.Assert(a)
	}

	return b.Build()
}

// shellCommands turns shell command lines into phase commands.
func shellCommands(lines []string) []harness.Command {
	cmds := make([]harness.Command, len(lines))
	for i, line := range lines {
		line := line
		cmds[i] = func(ctx context.Context, tc *harness.Context) error {
			_, err := tc.Device.Run(ctx, line)
			return err
		}
	}
	return cmds
}

// transitionCommands turns transition steps into phase commands.
func transitionCommands(steps []TransitionStep) []harness.Command {
	cmds := make([]harness.Command, len(steps))
	for i, step := range steps {
		step := step
		switch {
		case step.Tag != "":
			cmds[i] = func(ctx context.Context, tc *harness.Context) error {
				return tc.WithTag(ctx, step.Tag)
			}
		case step.WaitIdle:
			cmds[i] = func(ctx context.Context, tc *harness.Context) error {
				return tc.WaitForIdle(ctx)
			}
		default:
			cmds[i] = func(ctx context.Context, tc *harness.Context) error {
				_, err := tc.Device.Run(ctx, step.Run)
				return err
			}
		}
	}
	return cmds
}

// compileAssertion turns a declarative assertion into a harness assertion.
func compileAssertion(ac AssertionConfig) (harness.Assertion, error) {
	var a harness.Assertion
	switch ac.Type {
	case "snapshot_count":
		a = snapshotCount(ac.Monitor, ac.Count)
	case "state_contains":
		a = stateContains(ac.Monitor, ac.Substring)
	case "state_order":
		a = stateOrder(ac.Monitor, ac.Substrings)
	case "tag_present":
		a = harness.TagPresent(ac.Tag)
	case "jank_below":
		a = harness.JankBelow(ac.Max)
	case "runs_consistent":
		a = harness.RunsConsistent(ac.Monitor)
	default:
		return harness.Assertion{}, fmt.Errorf("unknown assertion type %q", ac.Type)
	}

	if ac.Name != "" {
		a.Name = ac.Name
	}
	a.Flaky = ac.Flaky
	return a, nil
}

// snapshotCount asserts the monitor captured exactly count snapshots.
func snapshotCount(monitorName string, count int) harness.Assertion {
	return harness.Assertion{
		Name:  fmt.Sprintf("%s_snapshot_count", monitorName),
		Scope: harness.ScopeRun,
		CheckRun: func(run *harness.Run) error {
			got := 0
			if tr, ok := run.Traces[monitorName]; ok {
				got = tr.Len()
			}
			if got != count {
				return fmt.Errorf("monitor %s captured %d snapshots, want %d", monitorName, got, count)
			}
			return nil
		},
	}
}

// stateContains asserts some snapshot of the monitor contains the substring.
func stateContains(monitorName, substring string) harness.Assertion {
	return harness.Assertion{
		Name:  fmt.Sprintf("%s_state_contains", monitorName),
		Scope: harness.ScopeRun,
		CheckRun: func(run *harness.Run) error {
			tr, ok := run.Traces[monitorName]
			if !ok {
				return fmt.Errorf("monitor %s captured no trace", monitorName)
			}
			for _, snap := range tr.Snapshots {
				if strings.Contains(snap.State["output"], substring) {
					return nil
				}
			}
			return fmt.Errorf("no snapshot of monitor %s contains %q (%d snapshots inspected)",
				monitorName, substring, tr.Len())
		},
	}
}

// stateOrder asserts the substrings first appear across the monitor's
// snapshots in the given order. Substrings do not need to appear in
// consecutive snapshots.
func stateOrder(monitorName string, substrings []string) harness.Assertion {
	return harness.Assertion{
		Name:  fmt.Sprintf("%s_state_order", monitorName),
		Scope: harness.ScopeRun,
		CheckRun: func(run *harness.Run) error {
			tr, ok := run.Traces[monitorName]
			if !ok {
				return fmt.Errorf("monitor %s captured no trace", monitorName)
			}
			positions := make([]int, len(substrings))
			for i, sub := range substrings {
				positions[i] = -1
				for j, snap := range tr.Snapshots {
					if strings.Contains(snap.State["output"], sub) {
						positions[i] = j
						break
					}
				}
				if positions[i] < 0 {
					return fmt.Errorf("monitor %s: %q not found in any snapshot", monitorName, sub)
				}
			}
			for i := 1; i < len(positions); i++ {
				if positions[i-1] > positions[i] {
					return fmt.Errorf("monitor %s: %q (snapshot %d) appears after %q (snapshot %d)",
						monitorName, substrings[i-1], positions[i-1], substrings[i], positions[i])
				}
			}
			return nil
		},
	}
}
