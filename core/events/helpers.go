package events

import "strconv"

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// Recorder keeps every emitted event in order. Hosts use it to buffer events
// until a transaction commits.
type Recorder struct {
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	if r == nil || e == nil {
		return
	}
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in emission order.
func (r *Recorder) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	if r != nil {
		r.events = nil
	}
}
