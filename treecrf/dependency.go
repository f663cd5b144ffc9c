package treecrf

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Dependency is a first-order dependency tree CRF. Scores are per-arc
// log-potentials indexed (batch, dependent, head); position 0 is the
// pseudo-root and the partition function ranges over all projective trees
// in which exactly one token attaches to it.
type Dependency struct{}

// Forward runs the inside algorithm and returns logZ, optionally arc
// marginals, and, when target is non-nil, the negative log-likelihood loss.
//
// target holds one head index per position (entry 0 is ignored). Under full
// supervision every position 1..L must name its gold head; with
// Options.Partial a head of -1 marks an unannotated position and the gold
// score becomes the log partition over all trees agreeing with the
// annotated arcs.
func (Dependency) Forward(scores *Tensor, mask *Mask, target [][]int, opts Options) (*Result, error) {
	if scores == nil || mask == nil {
		return nil, fmt.Errorf("treecrf: nil scores or mask")
	}
	if scores.B != mask.B || scores.N != mask.N {
		return nil, fmt.Errorf("treecrf: scores shape (%d,%d,%d) does not match mask shape (%d,%d)",
			scores.B, scores.N, scores.N, mask.B, mask.N)
	}
	lens, err := mask.lens()
	if err != nil {
		return nil, err
	}
	if target != nil {
		if err := checkHeads(target, lens, opts.Partial); err != nil {
			return nil, err
		}
	}

	res := &Result{Probs: scores}
	if opts.Marginals {
		res.Probs = NewTensor(scores.B, scores.N)
	}
	logZs := make([]float64, scores.B)
	golds := make([]float64, scores.B)

	var g errgroup.Group
	for b := range scores.B {
		g.Go(func() error {
			l := lens[b]
			tp := newTape(depTapeHint(l + 1))
			leaf, _, sc := depInside(tp, scores, b, l, nil)
			root := sc.At(0, l)
			logZs[b] = tp.vals[root]

			if opts.Marginals {
				adj := tp.backward(root)
				for d := 0; d <= l; d++ {
					for h := 0; h <= l; h++ {
						res.Probs.Set(b, d, h, adj[leaf.At(d, h)])
					}
				}
			}

			switch {
			case target == nil:
			case opts.Partial:
				rtp := newTape(depTapeHint(l + 1))
				_, _, rsc := depInside(rtp, scores, b, l, target[b])
				golds[b] = rtp.vals[rsc.At(0, l)]
			default:
				for d := 1; d <= l; d++ {
					golds[b] += scores.At(b, d, target[b][d])
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
		for _, s := range golds {
			gold += s
		}
		res.Loss = (res.LogZ - gold) / float64(total)
	}
	return res, nil
}

// depInside fills the incomplete-span and complete-span tables for one
// sentence of the batch. The tables are (L+1) x (L+1) grids of tape nodes:
// cell (h, m) with h < m holds the rightward span headed at h, cell (h, m)
// with h > m the leftward one. When cands is non-nil, arcs it excludes are
// pinned to -Inf before the recurrence runs.
func depInside(tp *tape, scores *Tensor, b, length int, cands []int) (leaf, si, sc *Grid[ref]) {
	n := length + 1
	leaf = NewGrid(n, tp.negInf)
	for d := range n {
		for h := range n {
			if cands == nil || arcAllowed(cands, d, h) {
				leaf.Set(d, h, tp.leaf(scores.At(b, d, h)))
			}
		}
	}

	si = NewGrid(n, tp.negInf)
	sc = NewGrid(n, tp.negInf)
	for i := range n {
		sc.Set(i, i, tp.zero) // empty span identity
	}

	terms := make([]ref, 0, n)
	for w := 1; w < n; w++ {
		ns := n - w

		// I(j->i) and I(i->j) share the same split aggregate:
		// logsumexp over r in [i, j) of C(i->r) + C(j->r+1).
		ra := sc.Stripe(ns, w, 0, 0, WidthMajor)
		rb := sc.Stripe(ns, w, w, 1, WidthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(ra.At(s, k), rb.At(s, k)))
			}
			agg := tp.logSumExp(terms)
			si.Set(j, i, tp.add2(agg, leaf.At(i, j)))
			si.Set(i, j, tp.add2(agg, leaf.At(j, i)))
		}

		// C(j->i) = logsumexp over r in [i, j) of C(r->i) + I(j->r)
		la := sc.Stripe(ns, w, 0, 0, LengthMajor)
		lb := si.Stripe(ns, w, w, 0, WidthMajor)
		// C(i->j) = logsumexp over r in (i, j] of I(i->r) + C(r->j)
		ua := si.Stripe(ns, w, 0, 1, WidthMajor)
		ub := sc.Stripe(ns, w, 1, w, LengthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(la.At(s, k), lb.At(s, k)))
			}
			sc.Set(j, i, tp.logSumExp(terms))
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(ua.At(s, k), ub.At(s, k)))
			}
			sc.Set(i, j, tp.logSumExp(terms))
		}

		// Only the whole-sentence span may close at the root: anything
		// shorter would let a second token attach to it.
		if w != length {
			sc.Set(0, w, tp.negInf)
		}
	}
	return leaf, si, sc
}

// arcAllowed reports whether the candidate restriction admits the arc with
// head h and dependent d. Position 0 and a head of -1 are wildcards.
func arcAllowed(cands []int, d, h int) bool {
	return d == 0 || cands[d] < 0 || cands[d] == h
}

// checkHeads validates a dependency target against the batch lengths.
func checkHeads(target [][]int, lens []int, partial bool) error {
	if len(target) != len(lens) {
		return fmt.Errorf("treecrf: target batch size %d does not match mask batch size %d", len(target), len(lens))
	}
	for b, heads := range target {
		l := lens[b]
		if len(heads) < l+1 {
			return fmt.Errorf("treecrf: target of batch element %d has %d entries, need %d", b, len(heads), l+1)
		}
		for d := 1; d <= l; d++ {
			h := heads[d]
			switch {
			case h == -1 && partial:
			case h < 0 || h > l:
				return fmt.Errorf("treecrf: head %d of position %d in batch element %d out of range [0,%d]", h, d, b, l)
			case h == d:
				return fmt.Errorf("treecrf: position %d in batch element %d is its own head", d, b)
			}
		}
	}
	return nil
}

// depTapeHint estimates the node count of a first-order inside pass.
func depTapeHint(n int) int {
	return n*n*n/2 + 6*n*n
}
