// Package device abstracts the device-interaction surface.
//
// The harness never interprets device state itself; it drives the device
// through the narrow Runner and IdleWaiter interfaces and leaves input
// injection, app launching, and idle detection to the implementation.
package device

import "context"

// Runner executes a command against the device and returns its output.
// Implementations are expected to be blocking; the harness runs phases
// strictly sequentially and never overlaps calls.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// IdleWaiter blocks until the device reaches a quiescent state.
// Transition commands call this between input events so traces do not
// straddle unrelated activity.
type IdleWaiter interface {
	WaitForIdle(ctx context.Context) error
}
