package trace

// Sink receives backward pass events.
//
// Record must be inert: it must not panic and cannot fail. Callers assume it
// may be a no-op.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event and swallows any panic from a buggy sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder collects events in memory. It is not safe for concurrent use,
// matching the single-threaded tape that feeds it.
type Recorder struct {
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	if len(event.Operands) > 0 {
		ops := make([]int, len(event.Operands))
		copy(ops, event.Operands)
		event.Operands = ops
	}
	r.events = append(r.events, event)
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.events)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.events = nil
}

// Snapshot returns a copy of all recorded events in arrival order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical Trace from the recorded events.
func (r *Recorder) Trace(graphHash string) Trace {
	tr := Trace{GraphHash: graphHash}
	tr.Events = r.Snapshot()
	tr.Canonicalize()
	return tr
}
