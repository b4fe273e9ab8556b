// Package gradcheck compares gradients from a backward pass against central
// finite differences.
package gradcheck

import (
	"errors"
	"fmt"
	"math"

	"toygrad/scalar"
)

var ErrMismatch = errors.New("gradient mismatch")

// Func builds an expression over xs on t and returns its output node.
// It must be deterministic and record every node on t.
type Func func(t *scalar.Tape, xs []scalar.Node) scalar.Node

// MismatchError reports the first input whose gradients disagree.
type MismatchError struct {
	Index    int
	Analytic float64
	Numeric  float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s at input %d: analytic %g, numeric %g", ErrMismatch, e.Index, e.Analytic, e.Numeric)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// Report holds both gradients of one check.
type Report struct {
	Analytic   []float64
	Numeric    []float64
	MaxAbsDiff float64
}

// Eval evaluates f at point on a fresh tape.
func Eval(f Func, point []float64) float64 {
	_, out := build(f, point)
	return out.Value()
}

// Analytic returns d f / d x_i at point from a single backward pass.
func Analytic(f Func, point []float64) ([]float64, error) {
	xs, out := build(f, point)
	if err := scalar.Backward(out); err != nil {
		return nil, err
	}
	grads := make([]float64, len(xs))
	for i, x := range xs {
		grads[i] = x.Grad()
	}
	return grads, nil
}

// Numeric returns the central-difference gradient of f at point with step eps.
func Numeric(f Func, point []float64, eps float64) []float64 {
	shifted := make([]float64, len(point))
	grads := make([]float64, len(point))
	for i := range point {
		copy(shifted, point)
		shifted[i] = point[i] + eps
		hi := Eval(f, shifted)
		shifted[i] = point[i] - eps
		lo := Eval(f, shifted)
		grads[i] = (hi - lo) / (2 * eps)
	}
	return grads
}

// Check compares Analytic and Numeric at point. The returned Report is
// populated even when the gradients disagree.
func Check(f Func, point []float64, cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	analytic, err := Analytic(f, point)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Analytic: analytic, Numeric: Numeric(f, point, cfg.Epsilon)}

	var first *MismatchError
	for i := range analytic {
		diff := math.Abs(analytic[i] - rep.Numeric[i])
		if diff > rep.MaxAbsDiff || math.IsNaN(diff) {
			rep.MaxAbsDiff = diff
		}
		if first == nil && !(diff <= cfg.Tolerance) {
			first = &MismatchError{Index: i, Analytic: analytic[i], Numeric: rep.Numeric[i]}
		}
	}
	if first != nil {
		return rep, first
	}
	return rep, nil
}

func build(f Func, point []float64) ([]scalar.Node, scalar.Node) {
	t := scalar.NewTape(scalar.WithCapacity(len(point)))
	xs := make([]scalar.Node, len(point))
	for i, v := range point {
		xs[i] = t.Named(fmt.Sprintf("x%d", i), v)
	}
	return xs, f(t, xs)
}
