package scalar

import (
	"bytes"
	"errors"
	"log/slog"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toygrad/trace"
)

func TestBackward_LinearCombination(t *testing.T) {
	tape := NewTape()
	a1 := tape.Named("a1", 4.0)
	a2 := tape.Named("a2", -3.0)
	a3 := tape.Named("a3", 2.0)

	res := Add(Add(Mul(a1, a2), Mul(a2, a3)), a3)
	require.Equal(t, -16.0, res.Value())
	require.NoError(t, Backward(res))

	assert.Equal(t, -3.0, a1.Grad())
	assert.Equal(t, 6.0, a2.Grad())
	assert.Equal(t, -2.0, a3.Grad())
	assert.Equal(t, 1.0, res.Grad())
}

func TestBackward_ReusedLeafDiamond(t *testing.T) {
	tape := NewTape()
	a1 := tape.Named("a1", 2.0)
	a2 := tape.Named("a2", 3.0)

	t1 := a1.Mul(a2)
	t2 := a1.Mul(a1)
	t3 := t1.Add(t2)
	t4 := t3.Add(a2)
	require.NoError(t, t4.Backward())

	assert.Equal(t, 7.0, a1.Grad(), "a2 + 2*a1")
	assert.Equal(t, 3.0, a2.Grad(), "a1 + 1")
	assert.Equal(t, 1.0, t3.Grad())
	assert.Equal(t, 1.0, t2.Grad())
}

func TestBackward_ScalarMinusNode(t *testing.T) {
	tape := NewTape()
	a := tape.Named("a", 5.0)

	r := Sub(2.0, a)
	require.Equal(t, -3.0, r.Value())
	require.NoError(t, Backward(r))

	assert.Equal(t, -1.0, a.Grad())
}

func TestBackward_SharedSubexpressionAccumulates(t *testing.T) {
	tape := NewTape()
	x := tape.Leaf(3)
	y := tape.Leaf(4)

	// Two independent branches: d/dx (x*y) = 4, d/dx (x+x) = 2.
	left := x.Mul(y)
	right := x.Add(x)
	require.NoError(t, Backward(left.Add(right)))

	assert.Equal(t, 6.0, x.Grad())
	assert.Equal(t, 3.0, y.Grad())
}

func TestBackward_DoesNotResetBetweenCalls(t *testing.T) {
	tape := NewTape()
	a := tape.Leaf(2)
	b := tape.Leaf(-1.5)
	c := tape.Leaf(0.5)
	root := a.Mul(b).Add(b.Mul(c)).Mul(a)

	require.NoError(t, Backward(root))
	g, err := Traverse(root)
	require.NoError(t, err)
	first := map[NodeID]float64{}
	for _, n := range g.Nodes() {
		first[n.ID()] = n.Grad()
	}
	require.Equal(t, 1.0, root.Grad())

	require.NoError(t, Backward(root))
	for _, n := range g.Nodes() {
		assert.Equal(t, 2*first[n.ID()], n.Grad(), "node %v", n)
	}
	assert.Equal(t, 2.0, root.Grad())
}

func TestBackward_ZeroGradRestoresFreshResult(t *testing.T) {
	tape := NewTape()
	a := tape.Leaf(4)
	b := tape.Leaf(-3)
	root := a.Mul(b)

	require.NoError(t, Backward(root))
	require.NoError(t, Backward(root))
	require.Equal(t, -6.0, a.Grad())

	tape.ZeroGrad()
	for i := 0; i < tape.Len(); i++ {
		n, _ := tape.Node(NodeID(i))
		assert.Zero(t, n.Grad())
	}
	require.NoError(t, Backward(root))
	assert.Equal(t, -3.0, a.Grad())
	assert.Equal(t, 4.0, b.Grad())

	g, err := Traverse(root)
	require.NoError(t, err)
	g.ZeroGrad()
	assert.Zero(t, a.Grad())
	assert.Zero(t, root.Grad())
}

func TestBackward_DifferentRootsAccumulate(t *testing.T) {
	tape := NewTape()
	x := tape.Leaf(3)
	sq := x.Mul(x)
	lin := Mul(5.0, x)

	require.NoError(t, Backward(sq))
	require.NoError(t, Backward(lin))
	assert.Equal(t, 11.0, x.Grad(), "2*x + 5")
	// sq was not reachable from lin, so it keeps its own seed only.
	assert.Equal(t, 1.0, sq.Grad())
}

func TestBackward_SharedIntermediateAcrossRoots(t *testing.T) {
	tape := NewTape()
	x := tape.Leaf(1)
	y := Mul(2, x)
	z := Add(y, 1)

	require.NoError(t, Backward(y))
	require.NoError(t, Backward(z))

	// Each pass contributes dy/dx = dz/dx = 2; y's gradient from the first
	// pass is not pushed to x a second time.
	assert.Equal(t, 4.0, x.Grad())
	assert.Equal(t, 2.0, y.Grad())
	assert.Equal(t, 1.0, z.Grad())
}

func TestBackward_CostIndependentOfTapeSize(t *testing.T) {
	const unrelated = 200_000
	tape := NewTape(WithCapacity(unrelated + 2))
	for i := 0; i < unrelated; i++ {
		tape.Leaf(float64(i))
	}
	a := tape.Leaf(2)
	root := a.Mul(a)
	require.NoError(t, Backward(root))

	const passes = 10
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < passes; i++ {
		if err := Backward(root); err != nil {
			t.Fatalf("backward: %v", err)
		}
		if _, err := Traverse(root); err != nil {
			t.Fatalf("traverse: %v", err)
		}
	}
	runtime.ReadMemStats(&after)

	perPass := (after.TotalAlloc - before.TotalAlloc) / passes
	assert.Less(t, perPass, uint64(64<<10), "a two-node subgraph allocated %d bytes per pass", perPass)
	assert.Equal(t, 4.0*(passes+1), a.Grad())
}

func BenchmarkBackward_SmallRootLargeTape(b *testing.B) {
	tape := NewTape()
	for i := 0; i < 1_000_000; i++ {
		tape.Leaf(float64(i))
	}
	a := tape.Leaf(2)
	root := a.Mul(a)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Backward(root); err != nil {
			b.Fatal(err)
		}
	}
}

func TestBackward_LeafRoot(t *testing.T) {
	tape := NewTape()
	x := tape.Leaf(3)
	require.NoError(t, Backward(x))
	assert.Equal(t, 1.0, x.Grad())
}

func TestBackward_DeepChain(t *testing.T) {
	const depth = 100_000
	tape := NewTape()
	x := tape.Leaf(1)
	n := x
	for i := 0; i < depth; i++ {
		n = n.Add(x)
	}
	require.NoError(t, Backward(n))
	assert.Equal(t, float64(depth+1), x.Grad())
}

func TestBackward_DetachedRoot(t *testing.T) {
	err := Backward(Node{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDetachedNode))
}

func TestBackward_UnsupportedOperatorPanics(t *testing.T) {
	tape := NewTape()
	a := tape.Leaf(1)
	bad := tape.push(slot{value: 1, op: Op(42)})
	root := a.Add(bad)

	requireGraphPanic(t, ErrUnsupportedOp, func() { _ = Backward(root) })
}

func TestBackward_RecordsTrace(t *testing.T) {
	rec := trace.NewRecorder()
	tape := NewTape(WithTraceSink(rec))
	a := tape.Leaf(2)
	b := tape.Leaf(3)
	root := a.Mul(b)

	require.NoError(t, Backward(root))
	g, err := Traverse(root)
	require.NoError(t, err)

	tr := rec.Trace(g.Hash().String())
	require.NoError(t, tr.Validate())
	events := tr.Pass(1)
	require.Len(t, events, 4)

	assert.Equal(t, trace.EventSeed, events[0].Kind)
	assert.Equal(t, int(root.ID()), events[0].Node)
	assert.Equal(t, 1.0, events[0].Adjoint)

	assert.Equal(t, trace.EventPropagate, events[1].Kind)
	assert.Equal(t, "Mul", events[1].Op)
	assert.Equal(t, []int{int(a.ID()), int(b.ID())}, events[1].Operands)

	// b was expanded after a, so it is processed first in reverse order.
	assert.Equal(t, trace.EventLeaf, events[2].Kind)
	assert.Equal(t, int(b.ID()), events[2].Node)
	assert.Equal(t, 2.0, events[2].Adjoint)
	assert.Equal(t, int(a.ID()), events[3].Node)
	assert.Equal(t, 3.0, events[3].Adjoint)

	require.NoError(t, Backward(root))
	tr = rec.Trace(g.Hash().String())
	assert.Len(t, tr.Pass(2), 4)
}

func TestBackward_TraceMatchesAcrossTapes(t *testing.T) {
	run := func(pad bool) (string, string) {
		rec := trace.NewRecorder()
		tape := NewTape(WithTraceSink(rec))
		if pad {
			_ = tape.Leaf(0)
		}
		a1 := tape.Leaf(4)
		a2 := tape.Leaf(-3)
		res := Add(Mul(a1, a2), a2)
		require.NoError(t, Backward(res))
		g, err := Traverse(res)
		require.NoError(t, err)
		h, err := rec.Trace(g.Hash().String()).Hash()
		require.NoError(t, err)
		return g.Hash().String(), h
	}
	g1, h1 := run(false)
	g2, h2 := run(false)
	g3, _ := run(true)

	assert.Equal(t, g1, g2)
	assert.Equal(t, h1, h2)
	assert.Equal(t, g1, g3, "graph identity ignores arena offsets")
}

func TestBackward_LogsPass(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tape := NewTape(WithLogger(logger))
	x := tape.Leaf(2)
	require.NoError(t, Backward(x.Mul(x)))

	out := buf.String()
	assert.Contains(t, out, "backward pass complete")
	assert.Contains(t, out, "pass=1")
	assert.Contains(t, out, "nodes=2")
	assert.Contains(t, out, "edges=2")
}
