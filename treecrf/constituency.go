package treecrf

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Constituency is a CRF over binary constituency trees. Scores are per-span
// log-potentials over fencepost positions (batch, i, j) with i < j; the
// partition function ranges over all binary bracketings of the sentence.
type Constituency struct{}

// Forward runs the inside algorithm and returns logZ, optionally span
// marginals, and, when target is non-nil, the loss. The gold score sums the
// scores of all spans flagged by both target and mask. Partial annotation
// is not defined for this model.
func (Constituency) Forward(scores *Tensor, mask, target *SpanMask, opts Options) (*Result, error) {
	if scores == nil || mask == nil {
		return nil, fmt.Errorf("treecrf: nil scores or mask")
	}
	if scores.B != mask.B || scores.N != mask.N {
		return nil, fmt.Errorf("treecrf: scores shape (%d,%d,%d) does not match mask shape (%d,%d,%d)",
			scores.B, scores.N, scores.N, mask.B, mask.N, mask.N)
	}
	if opts.Partial {
		return nil, fmt.Errorf("treecrf: partial annotation is not supported for constituency trees")
	}
	if target != nil && (target.B != mask.B || target.N != mask.N) {
		return nil, fmt.Errorf("treecrf: target shape (%d,%d,%d) does not match mask shape (%d,%d,%d)",
			target.B, target.N, target.N, mask.B, mask.N, mask.N)
	}
	lens, err := mask.lens()
	if err != nil {
		return nil, err
	}

	res := &Result{Probs: scores}
	if opts.Marginals {
		res.Probs = NewTensor(scores.B, scores.N)
	}
	logZs := make([]float64, scores.B)

	var g errgroup.Group
	for b := range scores.B {
		g.Go(func() error {
			l := lens[b]
			tp := newTape(conTapeHint(l + 1))
			leaf, chart := conInside(tp, scores, b, l)
			root := chart.At(0, l)
			logZs[b] = tp.vals[root]

			if opts.Marginals {
				adj := tp.backward(root)
				for i := 0; i < l; i++ {
					for j := i + 1; j <= l; j++ {
						res.Probs.Set(b, i, j, adj[leaf.At(i, j)])
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for b, z := range logZs {
		res.LogZ += z
		total += lens[b]
	}
	if target != nil {
		var gold float64
		for b := range scores.B {
			for i := range scores.N {
				for j := range scores.N {
					if mask.At(b, i, j) && target.At(b, i, j) {
						gold += scores.At(b, i, j)
					}
				}
			}
		}
		res.Loss = (res.LogZ - gold) / float64(total)
	}
	return res, nil
}

// conInside fills the single span chart for one sentence: width-1 spans are
// pre-terminals scored directly, wider spans aggregate over all binary
// split points and add their own span score.
func conInside(tp *tape, scores *Tensor, b, length int) (leaf, chart *Grid[ref]) {
	n := length + 1
	leaf = NewGrid(n, tp.negInf)
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			leaf.Set(i, j, tp.leaf(scores.At(b, i, j)))
		}
	}

	chart = NewGrid(n, tp.negInf)
	terms := make([]ref, 0, n)
	for w := 1; w < n; w++ {
		ns := n - w
		if w == 1 {
			for s := range ns {
				chart.Set(s, s+1, leaf.At(s, s+1))
			}
			continue
		}
		// s(i, j) = logsumexp over r in (i, j) of s(i, r) + s(r, j) + score(i, j)
		sa := chart.Stripe(ns, w-1, 0, 1, WidthMajor)
		sb := chart.Stripe(ns, w-1, 1, w, LengthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := range w - 1 {
				terms = append(terms, tp.add2(sa.At(s, k), sb.At(s, k)))
			}
			chart.Set(i, j, tp.add2(tp.logSumExp(terms), leaf.At(i, j)))
		}
	}
	return leaf, chart
}

// conTapeHint estimates the node count of a constituency inside pass.
func conTapeHint(n int) int {
	return n*n*n/3 + 4*n*n
}
