package scalar

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"toygrad/trace"
)

// slot is one arena entry. lhs and rhs are only meaningful when op.Arity() == 2.
type slot struct {
	value float64
	grad  float64
	op    Op
	lhs   NodeID
	rhs   NodeID
	label string
}

func (s *slot) operand(i int) NodeID {
	if i == 0 {
		return s.lhs
	}
	return s.rhs
}

// Tape is the arena holding every node of a computation.
//
// Nodes are only ever appended; a node can reference earlier nodes only.
type Tape struct {
	slots []slot

	logger  *slog.Logger
	sink    trace.Sink
	metrics *tapeMetrics
	passes  int
}

// Option configures a Tape.
type Option func(*tapeOptions)

type tapeOptions struct {
	logger        *slog.Logger
	sink          trace.Sink
	meterProvider metric.MeterProvider
	capacity      int
}

// WithLogger sets the logger used for backward pass diagnostics.
// A nil logger falls back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *tapeOptions) { o.logger = l }
}

// WithTraceSink records one trace event per node processed by Backward.
func WithTraceSink(s trace.Sink) Option {
	return func(o *tapeOptions) { o.sink = s }
}

// WithMeterProvider sets the provider for backward pass metrics.
// Defaults to the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *tapeOptions) { o.meterProvider = mp }
}

// WithCapacity preallocates room for n nodes.
func WithCapacity(n int) Option {
	return func(o *tapeOptions) { o.capacity = n }
}

// NewTape returns an empty tape.
func NewTape(opts ...Option) *Tape {
	var o tapeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.capacity < 0 {
		o.capacity = 0
	}
	return &Tape{
		slots:   make([]slot, 0, o.capacity),
		logger:  o.logger,
		sink:    o.sink,
		metrics: newTapeMetrics(o.meterProvider, o.logger),
	}
}

// Len returns the number of nodes recorded on the tape.
func (t *Tape) Len() int { return len(t.slots) }

// Leaf records an externally supplied value.
func (t *Tape) Leaf(v float64) Node {
	return t.push(slot{value: v, op: OpLeaf})
}

// Named records a leaf with a debug label.
func (t *Tape) Named(label string, v float64) Node {
	return t.push(slot{value: v, op: OpLeaf, label: label})
}

// Node returns the handle for id. ok is false when id is out of range.
func (t *Tape) Node(id NodeID) (Node, bool) {
	if id < 0 || int(id) >= len(t.slots) {
		return Node{}, false
	}
	return Node{tape: t, id: id}, true
}

// ZeroGrad resets the gradient of every node on the tape.
func (t *Tape) ZeroGrad() {
	for i := range t.slots {
		t.slots[i].grad = 0
	}
}

func (t *Tape) push(s slot) Node {
	id := NodeID(len(t.slots))
	t.slots = append(t.slots, s)
	t.metrics.nodeRecorded(s.op)
	return Node{tape: t, id: id}
}

// Node is a handle to one recorded value. The zero Node is detached.
//
// Handles are cheap to copy; copies refer to the same arena slot.
type Node struct {
	tape *Tape
	id   NodeID
}

// Tape returns the tape the node was recorded on, or nil for a detached node.
func (n Node) Tape() *Tape { return n.tape }

// ID returns the node's arena index.
func (n Node) ID() NodeID { return n.id }

// Valid reports whether n refers to a recorded node.
func (n Node) Valid() bool {
	return n.tape != nil && n.id >= 0 && int(n.id) < len(n.tape.slots)
}

func (n Node) slot() *slot {
	if !n.Valid() {
		panic(&GraphError{Kind: ErrDetachedNode})
	}
	return &n.tape.slots[n.id]
}

func (n Node) Value() float64 { return n.slot().value }
func (n Node) Grad() float64  { return n.slot().grad }
func (n Node) Op() Op         { return n.slot().op }
func (n Node) Label() string  { return n.slot().label }

// Operands returns the nodes n was computed from, in argument order.
// Leaves return nil.
func (n Node) Operands() []Node {
	s := n.slot()
	arity := s.op.Arity()
	if arity == 0 {
		return nil
	}
	out := make([]Node, arity)
	for i := range out {
		out[i] = Node{tape: n.tape, id: s.operand(i)}
	}
	return out
}

// Labeled sets the debug label and returns n.
func (n Node) Labeled(label string) Node {
	n.slot().label = label
	return n
}

func (n Node) String() string {
	if !n.Valid() {
		return "Node(detached)"
	}
	s := n.slot()
	if s.label == "" {
		return fmt.Sprintf("Node(id=%d, value=%g, grad=%g)", n.id, s.value, s.grad)
	}
	return fmt.Sprintf("Node(id=%d, label=%s, value=%g, grad=%g)", n.id, s.label, s.value, s.grad)
}
