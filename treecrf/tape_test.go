package treecrf

import (
	"math"
	"testing"
)

func TestTapeLogSumExp(t *testing.T) {
	tp := newTape(16)
	a := tp.leaf(1.0)
	b := tp.leaf(2.0)
	c := tp.leaf(0.5)
	out := tp.logSumExp([]ref{a, b, c})

	want := math.Log(math.Exp(1.0) + math.Exp(2.0) + math.Exp(0.5))
	if math.Abs(tp.vals[out]-want) > 1e-12 {
		t.Errorf("logsumexp = %v, want %v", tp.vals[out], want)
	}

	// gradients are the softmax of the operands
	adj := tp.backward(out)
	sum := 0.0
	for _, x := range []ref{a, b, c} {
		g := adj[x]
		want := math.Exp(tp.vals[x] - tp.vals[out])
		if math.Abs(g-want) > 1e-12 {
			t.Errorf("grad = %v, want %v", g, want)
		}
		sum += g
	}
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("gradients sum to %v, want 1", sum)
	}
}

func TestTapeLogSumExpAllNegInf(t *testing.T) {
	tp := newTape(16)
	out := tp.logSumExp([]ref{tp.negInf, tp.negInf})
	if !math.IsInf(tp.vals[out], -1) {
		t.Errorf("logsumexp over -Inf = %v, want -Inf", tp.vals[out])
	}

	// no probability mass: gradients must be exactly zero, never NaN
	top := tp.add2(out, tp.leaf(3.0))
	adj := tp.backward(top)
	for i, g := range adj[:int(out)+1] {
		if math.IsNaN(g) {
			t.Fatalf("NaN gradient at node %d", i)
		}
	}
	if adj[tp.negInf] != 0 {
		t.Errorf("gradient of impossible structure = %v, want 0", adj[tp.negInf])
	}
}

func TestTapeNegInfOperandGradIsZero(t *testing.T) {
	tp := newTape(16)
	a := tp.leaf(1.0)
	out := tp.logSumExp([]ref{a, tp.negInf})
	adj := tp.backward(out)

	if math.Abs(adj[a]-1.0) > 1e-12 {
		t.Errorf("finite operand grad = %v, want 1", adj[a])
	}
	if adj[tp.negInf] != 0 {
		t.Errorf("-Inf operand grad = %v, want 0", adj[tp.negInf])
	}
}

func TestTapeChainRule(t *testing.T) {
	// d/dx logsumexp(x+y, x+z) at shared leaf x is 1
	tp := newTape(16)
	x := tp.leaf(0.3)
	y := tp.leaf(-0.2)
	z := tp.leaf(0.9)
	out := tp.logSumExp([]ref{tp.add2(x, y), tp.add2(x, z)})
	adj := tp.backward(out)

	if math.Abs(adj[x]-1.0) > 1e-12 {
		t.Errorf("grad x = %v, want 1", adj[x])
	}
	wantY := math.Exp(tp.vals[y]) / (math.Exp(tp.vals[y]) + math.Exp(tp.vals[z]))
	if math.Abs(adj[y]-wantY) > 1e-12 {
		t.Errorf("grad y = %v, want %v", adj[y], wantY)
	}
}
