// Package trace defines the on-disk trace artifact model.
//
// A trace is a time-ordered sequence of state snapshots captured by a monitor
// across one repetition of a transition. The engine treats snapshot contents
// as opaque; only ordering, labels, and artifact naming are interpreted here.
package trace

// Snapshot is a single captured state observation.
type Snapshot struct {
	// Seq orders snapshots within a trace. Assigned by the capturing
	// monitor, starts at 1 per capture window.
	Seq int64 `json:"seq"`

	// CapturedAtNs is the wall-clock capture time in Unix nanoseconds.
	// Zero when the capturing monitor runs with a fixed clock (tests).
	CapturedAtNs int64 `json:"captured_at_ns,omitempty"`

	// Label marks why the snapshot was taken: "start", "stop", or a
	// caller-supplied tag name.
	Label string `json:"label,omitempty"`

	// State holds the captured key/value state. Keys are monitor-defined.
	State map[string]string `json:"state,omitempty"`
}

// Trace is the artifact produced by one monitor over one capture window.
type Trace struct {
	// Monitor names the monitor that produced this trace.
	Monitor string `json:"monitor"`

	// Snapshots are ordered by Seq, ascending.
	Snapshots []Snapshot `json:"snapshots"`
}

// Append adds a snapshot to the trace, preserving insertion order.
func (t *Trace) Append(s Snapshot) {
	t.Snapshots = append(t.Snapshots, s)
}

// Len returns the number of snapshots in the trace.
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Snapshots)
}
