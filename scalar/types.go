package scalar

import "fmt"

// Op tags how a node was produced.
type Op uint8

const (
	OpLeaf Op = iota
	OpAdd
	OpMul
)

func (o Op) String() string {
	switch o {
	case OpLeaf:
		return "Leaf"
	case OpAdd:
		return "Add"
	case OpMul:
		return "Mul"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Symbol returns the arithmetic symbol of the operator, or "" for leaves.
func (o Op) Symbol() string {
	switch o {
	case OpAdd:
		return "+"
	case OpMul:
		return "*"
	default:
		return ""
	}
}

// Arity returns the number of operands a node with this operator records.
func (o Op) Arity() int {
	switch o {
	case OpAdd, OpMul:
		return 2
	default:
		return 0
	}
}

// NodeID is a node's position in its tape's arena.
type NodeID int

// GraphHash is the deterministic identity of a traversed subgraph.
//
// It is computed from operator tags, values and operand structure only, so two
// tapes recording the same expression produce the same hash regardless of
// where the subgraph sits in the arena.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// Edge is an operand relation: From is an operand of To.
type Edge struct {
	From Node
	To   Node
}
