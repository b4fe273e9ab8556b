package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Trace is the ordered record of one or more backward passes over a graph.
//
// It captures the order in which gradient rules ran and the adjoint each node
// held when its rule ran. It does not describe the graph itself beyond the
// operand ids each rule wrote to.
//
// Canonical representation:
//   - Events are sorted by (pass, step) via Canonicalize.
//   - JSON uses fixed field order and omits absent optional fields.
type Trace struct {
	GraphHash string
	Events    []Event
}

// EventKind discriminates Event. The string values are part of the canonical
// bytes; do not rename.
type EventKind string

const (
	EventSeed      EventKind = "Seed"
	EventPropagate EventKind = "Propagate"
	EventLeaf      EventKind = "Leaf"
)

// Event is one step of a backward pass.
//
// Step 0 of every pass is the seed of the root; steps 1..n visit the
// reachable nodes in reverse topological order.
type Event struct {
	Pass int
	Step int
	Kind EventKind

	// Node is the arena id of the node the event refers to.
	Node int
	Op   string

	// Adjoint is the gradient contribution the node held when its rule ran.
	Adjoint float64

	// Operands lists the ids the rule wrote to, in argument order.
	Operands []int
}

// Validate checks basic invariants and returns a descriptive error.
func (t *Trace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.GraphHash == "" {
		return errors.New("graphHash is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Pass <= 0 {
			return fmt.Errorf("events[%d].pass must be positive", i)
		}
		if e.Step < 0 || e.Node < 0 {
			return fmt.Errorf("events[%d] has negative step or node", i)
		}
		if e.Kind == EventLeaf && len(e.Operands) > 0 {
			return fmt.Errorf("events[%d]: leaf event with operands", i)
		}
	}
	return nil
}

// Canonicalize sorts events by pass, then step, then kind.
func (t *Trace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Operands) == 0 {
			t.Events[i].Operands = nil
		}
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]
		if a.Pass != b.Pass {
			return a.Pass < b.Pass
		}
		if a.Step != b.Step {
			return a.Step < b.Step
		}
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventSeed:
		return 10
	case EventPropagate:
		return 20
	case EventLeaf:
		return 30
	default:
		return 1000
	}
}

// Pass returns the events of one pass in step order.
func (t Trace) Pass(pass int) []Event {
	var out []Event
	for _, e := range t.Events {
		if e.Pass == pass {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy to avoid mutating the caller's slices.
func (t Trace) CanonicalJSON() ([]byte, error) {
	c := Trace{GraphHash: t.GraphHash}
	c.Events = make([]Event, len(t.Events))
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the sha256 hex digest of the canonical JSON bytes.
func (t Trace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON fixes field order.
func (t Trace) MarshalJSON() ([]byte, error) {
	if t.GraphHash == "" {
		return nil, errors.New("graphHash is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"graphHash":`)
	gh, _ := json.Marshal(t.GraphHash)
	buf.Write(gh)

	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"pass":%d,"step":%d,"kind":`, e.Pass, e.Step)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)
	fmt.Fprintf(&buf, `,"node":%d`, e.Node)

	if e.Op != "" {
		buf.WriteString(`,"op":`)
		ob, _ := json.Marshal(e.Op)
		buf.Write(ob)
	}

	buf.WriteString(`,"adjoint":`)
	ab, err := json.Marshal(e.Adjoint)
	if err != nil {
		return nil, fmt.Errorf("adjoint of node %d: %w", e.Node, err)
	}
	buf.Write(ab)

	if len(e.Operands) > 0 {
		buf.WriteString(`,"operands":`)
		opb, _ := json.Marshal(e.Operands)
		buf.Write(opb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
