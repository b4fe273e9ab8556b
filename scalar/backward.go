package scalar

import (
	"context"
	"log/slog"

	"toygrad/trace"
)

// Backward computes d(root)/d(n) for every node n reachable from root and adds
// it to n's gradient.
//
// Gradients are not reset first. Each pass computes its own contributions,
// seeded with 1.0 at root, and adds them to the stored gradients, so calling
// Backward twice on the same root doubles every gradient.
func Backward(root Node) error {
	if !root.Valid() {
		return &GraphError{Kind: ErrDetachedNode, Msg: "backward root"}
	}
	root.tape.backward(root.id)
	return nil
}

// Backward is shorthand for Backward(n).
func (n Node) Backward() error { return Backward(n) }

func (t *Tape) backward(root NodeID) {
	w := t.topoOrder(root)
	order := w.order
	t.passes++
	pass := t.passes

	// adj is indexed by position in order; the root is last.
	adj := make([]float64, len(order))
	adj[len(order)-1] = 1.0
	t.record(trace.Event{Pass: pass, Kind: trace.EventSeed, Node: int(root), Op: t.slots[root].op.String(), Adjoint: 1.0})

	// Reverse topological order: every consumer of a node runs before the
	// node itself, so adj[i] is final when its rule is applied.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		s := &t.slots[id]
		t.recordStep(pass, len(order)-i, id, s, adj[i])
		t.propagate(id, s, adj[i], adj, w.pos)
	}

	for i, id := range order {
		t.slots[id].grad += adj[i]
	}

	t.logger.Debug("backward pass complete",
		slog.Int("pass", pass),
		slog.Int("root", int(root)),
		slog.Int("nodes", len(order)),
		slog.Int("edges", len(w.edges)),
	)
	t.metrics.backwardDone(context.Background(), len(order))
}

// propagate applies the local gradient rule selected by the node's operator,
// adding g's contributions to the operands' entries in adj.
func (t *Tape) propagate(id NodeID, s *slot, g float64, adj []float64, pos map[NodeID]int32) {
	switch s.op {
	case OpLeaf:
	case OpAdd:
		adj[pos[s.lhs]] += g
		adj[pos[s.rhs]] += g
	case OpMul:
		adj[pos[s.lhs]] += g * t.slots[s.rhs].value
		adj[pos[s.rhs]] += g * t.slots[s.lhs].value
	default:
		panic(unsupportedOp(id, s.op))
	}
}

func (t *Tape) record(e trace.Event) {
	if t.sink == nil {
		return
	}
	trace.SafeRecord(t.sink, e)
}

func (t *Tape) recordStep(pass, step int, id NodeID, s *slot, adjoint float64) {
	if t.sink == nil {
		return
	}
	e := trace.Event{
		Pass:    pass,
		Step:    step,
		Kind:    trace.EventPropagate,
		Node:    int(id),
		Op:      s.op.String(),
		Adjoint: adjoint,
	}
	if s.op == OpLeaf {
		e.Kind = trace.EventLeaf
	}
	for i := 0; i < s.op.Arity(); i++ {
		e.Operands = append(e.Operands, int(s.operand(i)))
	}
	trace.SafeRecord(t.sink, e)
}
