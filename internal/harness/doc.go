// Package harness is the transition test engine.
//
// A test drives a repeatable UI transition on a device a configured number
// of times, captures a trace per monitor around each transition window, and
// evaluates declarative assertions over the captured data.
//
// # Execution model
//
// One execution cycle runs five ordered phase lists per repetition:
//
//	setup-once (first repetition only)
//	setup
//	transition     <- monitors capture this window
//	teardown
//	teardown-once  (last repetition only)
//
// Monitors are started immediately before the transition commands and are
// guaranteed to be stopped, with their artifacts flushed, even when a
// transition command fails. Execution is strictly sequential: the device
// can only be driven by one transition at a time, so there is no overlap
// between phases, repetitions, or monitor lifecycles.
//
// # Failure classes
//
// Two disjoint failure classes exist. Execution failures (a phase command
// or monitor could not be driven) are fatal, abort the remaining
// repetitions, and surface from Execute as an *ExecutionError. Assertion
// failures (captured data violates an expectation) are collected
// exhaustively and surface from CheckAssertions as an *AssertionError whose
// message joins every individual failure.
//
// # Usage
//
//	test, err := harness.NewBuilder("app_launch", dev).
//		OutputDir(dir).
//		Repeat(3).
//		Monitor(winState).
//		Transition(openApp, waitIdle).
//		Assert(launchCompletes).
//		Build()
//	if err != nil {
//		return err
//	}
//	if err := test.CheckAssertions(ctx, false); err != nil {
//		return err
//	}
package harness
