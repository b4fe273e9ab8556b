// Package trace records the order in which a backward pass applied gradient
// rules.
//
// A Tape configured with a Sink emits one Event per processed node. Recorder
// collects them, and Trace gives a canonical, hashable view used to compare
// passes across tapes that recorded the same expression.
package trace
