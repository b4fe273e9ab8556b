package scalar

// Operand is anything an operator accepts: a recorded Node or a raw number,
// which is promoted to a new float64 leaf on the other operand's tape. int is
// included so untyped integer constants such as Add(x, 2) compile.
type Operand interface {
	Node | float64 | int
}

// Add records a + b.
//
// Backward rule: both operands receive the result's gradient unchanged.
func Add[A, B Operand](a A, b B) Node {
	t, x, y := resolve("add", a, b)
	return t.push(slot{value: t.slots[x].value + t.slots[y].value, op: OpAdd, lhs: x, rhs: y})
}

// Mul records a * b.
//
// Backward rule: each operand receives the result's gradient scaled by the
// other operand's value.
func Mul[A, B Operand](a A, b B) Node {
	t, x, y := resolve("mul", a, b)
	return t.push(slot{value: t.slots[x].value * t.slots[y].value, op: OpMul, lhs: x, rhs: y})
}

// Neg records -a as a * -1.
func Neg(a Node) Node {
	return Mul(a, -1.0)
}

// Sub records a - b as a + (-b). A raw b is negated before promotion, a node
// b goes through Neg. For a raw a this yields Neg(b) + a.
func Sub[A, B Operand](a A, b B) Node {
	bv, bIsNode := any(b).(Node)
	if !bIsNode {
		return Add(a, -rawValue(b))
	}
	if _, aIsNode := any(a).(Node); !aIsNode {
		return Add(Neg(bv), a)
	}
	return Add(a, Neg(bv))
}

func (n Node) Add(o Node) Node { return Add(n, o) }
func (n Node) Mul(o Node) Node { return Mul(n, o) }
func (n Node) Sub(o Node) Node { return Sub(n, o) }
func (n Node) Neg() Node       { return Neg(n) }

// resolve finds the tape shared by the operands and returns arena indices for
// both, promoting raw scalars to leaves. Scalars are promoted in argument
// order after both node operands have been validated.
func resolve[A, B Operand](op string, a A, b B) (*Tape, NodeID, NodeID) {
	na, aIsNode := any(a).(Node)
	nb, bIsNode := any(b).(Node)

	var t *Tape
	switch {
	case aIsNode && bIsNode:
		if !na.Valid() || !nb.Valid() {
			panic(graphErrorf(ErrDetachedNode, "%s operand", op))
		}
		if na.tape != nb.tape {
			panic(graphErrorf(ErrTapeMismatch, "%s", op))
		}
		return na.tape, na.id, nb.id
	case aIsNode:
		if !na.Valid() {
			panic(graphErrorf(ErrDetachedNode, "%s operand", op))
		}
		t = na.tape
	case bIsNode:
		if !nb.Valid() {
			panic(graphErrorf(ErrDetachedNode, "%s operand", op))
		}
		t = nb.tape
	default:
		panic(graphErrorf(ErrNoNode, "%s(%v, %v)", op, a, b))
	}

	x := na.id
	if !aIsNode {
		x = t.Leaf(rawValue(a)).id
	}
	y := nb.id
	if !bIsNode {
		y = t.Leaf(rawValue(b)).id
	}
	return t, x, y
}

// rawValue converts a non-node operand to float64.
func rawValue[A Operand](a A) float64 {
	switch v := any(a).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	panic("scalar: rawValue called with a Node")
}
