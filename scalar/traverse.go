package scalar

// Traverse returns the subgraph reachable from root.
//
// Nodes are listed operands-first, so every node appears after all of its
// operands. A node reached through several paths is listed and expanded once.
// Each operand slot of an expanded node contributes one edge, so x*x records
// two x -> result edges.
func Traverse(root Node) (*Graph, error) {
	if !root.Valid() {
		return nil, &GraphError{Kind: ErrDetachedNode, Msg: "traverse root"}
	}
	w := root.tape.topoOrder(root.id)
	return &Graph{tape: root.tape, root: root.id, order: w.order, pos: w.pos, edges: w.edges}, nil
}

// walk is the result of one traversal. pos maps every reachable id to its
// index in order, so per-pass state can be sized by the subgraph rather than
// the tape.
type walk struct {
	order []NodeID
	pos   map[NodeID]int32
	edges []edgeIndex
}

type frame struct {
	id   NodeID
	next int // next operand slot to expand
}

// pending marks a node that is on the stack but not yet placed in order.
const pending int32 = -1

// topoOrder is an iterative post-order DFS.
func (t *Tape) topoOrder(root NodeID) walk {
	w := walk{
		order: make([]NodeID, 0, 16),
		pos:   make(map[NodeID]int32, 16),
	}

	stack := []frame{{id: root}}
	w.pos[root] = pending
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		s := &t.slots[top.id]
		if top.next < s.op.Arity() {
			child := s.operand(top.next)
			top.next++
			w.edges = append(w.edges, edgeIndex{from: child, to: top.id})
			if _, seen := w.pos[child]; !seen {
				w.pos[child] = pending
				stack = append(stack, frame{id: child})
			}
			continue
		}
		w.pos[top.id] = int32(len(w.order))
		w.order = append(w.order, top.id)
		stack = stack[:len(stack)-1]
	}
	return w
}
