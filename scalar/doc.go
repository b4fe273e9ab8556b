// Package scalar implements reverse-mode automatic differentiation over
// float64 values.
//
// It is split into:
//   - Graph construction: every operator call appends one node to a Tape
//     (an arena) and fixes the node's operator tag and operand indices.
//   - Gradient realization: Backward walks the reachable subgraph in reverse
//     topological order and accumulates chain-rule contributions.
//
// Operand links are arena indices that always point to earlier slots, so the
// recorded graph is acyclic by construction. Gradients are never reset
// implicitly; use Tape.ZeroGrad or Graph.ZeroGrad between passes.
//
// A Tape is not safe for concurrent use.
package scalar
