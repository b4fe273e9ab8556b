package scalar

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

type edgeIndex struct {
	from NodeID
	to   NodeID
}

// Graph is the subgraph reachable from a root, in topological order.
//
// It is a snapshot of structure only: Value and Grad on its nodes read the
// live tape.
type Graph struct {
	tape  *Tape
	root  NodeID
	order []NodeID         // operands before results; root is last
	pos   map[NodeID]int32 // id -> index in order
	edges []edgeIndex      // one per operand slot of each expanded node

	hash GraphHash
}

// Root returns the node the traversal started from.
func (g *Graph) Root() Node { return Node{tape: g.tape, id: g.root} }

// Len returns the number of distinct reachable nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns the reachable nodes in topological order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.order))
	for i, id := range g.order {
		out[i] = Node{tape: g.tape, id: id}
	}
	return out
}

// Edges returns operand -> result pairs in discovery order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: Node{tape: g.tape, id: e.from}, To: Node{tape: g.tape, id: e.to}})
	}
	return out
}

// ZeroGrad resets the gradient of every reachable node.
func (g *Graph) ZeroGrad() {
	for _, id := range g.order {
		g.tape.slots[id].grad = 0
	}
}

// Hash returns the stable identity of the subgraph.
func (g *Graph) Hash() GraphHash {
	if g.hash == "" {
		g.hash = g.computeHash()
	}
	return g.hash
}

func (g *Graph) computeHash() GraphHash {
	h := sha256.New()

	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	// Positions in the topological order replace arena ids.
	writeUint(uint64(len(g.order)))
	for _, id := range g.order {
		s := &g.tape.slots[id]
		h.Write([]byte{byte(s.op)})
		writeUint(math.Float64bits(s.value))
		for i := 0; i < s.op.Arity(); i++ {
			writeUint(uint64(g.pos[s.operand(i)]))
		}
	}

	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
