package treecrf

import "math"

// ref identifies a node on a tape.
type ref = int32

const (
	opLeaf uint8 = iota
	opAdd2
	opLSE
)

type node struct {
	kind   uint8
	a0, a1 ref // add2: operands; lse: half-open range into tape.args
}

// tape is a minimal reverse-mode autodiff engine recording exactly the
// operations the inside algorithms need: leaf inputs, binary sums, and
// log-sum-exp reductions. Nodes are appended in topological order, so the
// backward sweep is a single reverse pass over the node list.
//
// Each forward invocation of a CRF builds a fresh tape per batch element;
// tapes share no state and are discarded once gradients are extracted.
type tape struct {
	vals  []float64
	nodes []node
	args  []ref

	negInf ref // shared -Inf node, log-potential of impossible structures
	zero   ref // shared 0 node, the empty-span identity
}

func newTape(capHint int) *tape {
	t := &tape{
		vals:  make([]float64, 0, capHint),
		nodes: make([]node, 0, capHint),
	}
	t.negInf = t.leaf(negInf)
	t.zero = t.leaf(0)
	return t
}

// leaf records an input node. Its gradient is readable after backward.
func (t *tape) leaf(v float64) ref {
	t.vals = append(t.vals, v)
	t.nodes = append(t.nodes, node{kind: opLeaf})
	return ref(len(t.nodes) - 1)
}

// add2 records the sum of two nodes.
func (t *tape) add2(a, b ref) ref {
	t.vals = append(t.vals, t.vals[a]+t.vals[b])
	t.nodes = append(t.nodes, node{kind: opAdd2, a0: a, a1: b})
	return ref(len(t.nodes) - 1)
}

// logSumExp records a log-sum-exp reduction over the given nodes.
// An all -Inf operand set yields -Inf without error.
func (t *tape) logSumExp(xs []ref) ref {
	hi := negInf
	for _, x := range xs {
		if t.vals[x] > hi {
			hi = t.vals[x]
		}
	}
	v := hi
	if !math.IsInf(hi, -1) {
		var sum float64
		for _, x := range xs {
			sum += math.Exp(t.vals[x] - hi)
		}
		v = hi + math.Log(sum)
	}
	start := ref(len(t.args))
	t.args = append(t.args, xs...)
	t.vals = append(t.vals, v)
	t.nodes = append(t.nodes, node{kind: opLSE, a0: start, a1: ref(len(t.args))})
	return ref(len(t.nodes) - 1)
}

// backward propagates adjoints from root down to the leaves and returns the
// adjoint of every node. For a log-sum-exp node the adjoint of operand x is
// adj * exp(val(x) - val(node)), which is exactly zero whenever x is an
// impossible (-Inf) structure; a reduction whose own value is -Inf carries
// no probability mass and propagates nothing, so no NaN can leak into the
// gradients.
func (t *tape) backward(root ref) []float64 {
	adj := make([]float64, len(t.nodes))
	adj[root] = 1
	for id := root; id >= 0; id-- {
		a := adj[id]
		if a == 0 {
			continue
		}
		n := t.nodes[id]
		switch n.kind {
		case opAdd2:
			adj[n.a0] += a
			adj[n.a1] += a
		case opLSE:
			v := t.vals[id]
			if math.IsInf(v, -1) {
				continue
			}
			for _, x := range t.args[n.a0:n.a1] {
				adj[x] += a * math.Exp(t.vals[x]-v)
			}
		}
	}
	return adj
}
