package treecrf

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Dependency2o is a second-order dependency tree CRF that scores, in
// addition to individual arcs, pairs of adjacent siblings attached to the
// same head. Arc scores are indexed (batch, dependent, head) and sibling
// scores (batch, dependent, head, sibling), where the sibling is the
// previously attached dependent between the new one and the head.
type Dependency2o struct{}

// Target2o is the gold structure of the second-order model: per-position
// head indices plus per-position adjacent-sibling indices, where 0 means
// the position is its head's innermost dependent and has no sibling.
type Target2o struct {
	Arcs [][]int
	Sibs [][]int
}

// Forward mirrors Dependency.Forward with the richer recurrence. Marginals
// are computed for the arc scores; under full supervision the gold score
// additionally sums the sibling scores of all non-innermost attachments,
// and under partial supervision only the arc annotation restricts the
// second inside pass.
func (Dependency2o) Forward(arcs *Tensor, sibs *Tensor3, mask *Mask, target *Target2o, opts Options) (*Result, error) {
	if arcs == nil || sibs == nil || mask == nil {
		return nil, fmt.Errorf("treecrf: nil scores or mask")
	}
	if arcs.B != mask.B || arcs.N != mask.N || sibs.B != arcs.B || sibs.N != arcs.N {
		return nil, fmt.Errorf("treecrf: arc shape (%d,%d,%d) and sibling shape (%d,%d,%d,%d) do not match mask shape (%d,%d)",
			arcs.B, arcs.N, arcs.N, sibs.B, sibs.N, sibs.N, sibs.N, mask.B, mask.N)
	}
	lens, err := mask.lens()
	if err != nil {
		return nil, err
	}
	if target != nil {
		if err := checkHeads(target.Arcs, lens, opts.Partial); err != nil {
			return nil, err
		}
		if !opts.Partial {
			if err := checkSibs(target, lens); err != nil {
				return nil, err
			}
		}
	}

	res := &Result{Probs: arcs}
	if opts.Marginals {
		res.Probs = NewTensor(arcs.B, arcs.N)
	}
	logZs := make([]float64, arcs.B)
	golds := make([]float64, arcs.B)

	var g errgroup.Group
	for b := range arcs.B {
		g.Go(func() error {
			l := lens[b]
			tp := newTape(dep2oTapeHint(l + 1))
			leaf, _, _, sc := dep2oInside(tp, arcs, sibs, b, l, nil)
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
				rtp := newTape(dep2oTapeHint(l + 1))
				_, _, _, rsc := dep2oInside(rtp, arcs, sibs, b, l, target.Arcs[b])
				golds[b] = rtp.vals[rsc.At(0, l)]
			default:
				for d := 1; d <= l; d++ {
					h := target.Arcs[b][d]
					golds[b] += arcs.At(b, d, h)
					if s := target.Sibs[b][d]; s > 0 {
						golds[b] += sibs.At(b, d, h, s)
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
		for _, s := range golds {
			gold += s
		}
		res.Loss = (res.LogZ - gold) / float64(total)
	}
	return res, nil
}

// dep2oInside fills the incomplete, sibling and complete tables for one
// sentence. The sibling table S(i, j) aggregates two adjacent complete
// subtrees over the boundary pair (i, j) without an arc emission, so it is
// symmetric and written to both triangles each width.
func dep2oInside(tp *tape, arcs *Tensor, sibs *Tensor3, b, length int, cands []int) (leaf, si, ss, sc *Grid[ref]) {
	n := length + 1
	leaf = NewGrid(n, tp.negInf)
	for d := range n {
		for h := range n {
			if cands == nil || arcAllowed(cands, d, h) {
				leaf.Set(d, h, tp.leaf(arcs.At(b, d, h)))
			}
		}
	}

	si = NewGrid(n, tp.negInf)
	ss = NewGrid(n, tp.negInf)
	sc = NewGrid(n, tp.negInf)
	for i := range n {
		sc.Set(i, i, tp.zero)
	}

	terms := make([]ref, 0, n)
	for w := 1; w < n; w++ {
		ns := n - w

		// I(j->i) = logsumexp(I(j->r) + S(r, i) + s_sib(i, j, r),  i < r < j
		//           boundary: C(j->j) + C(i->j-1))
		//         + s_arc(i, j)
		la := si.Stripe(ns, w, w, 1, WidthMajor)
		lb := ss.Stripe(ns, w, 1, 0, LengthMajor)
		// I(i->j) = logsumexp(I(i->r) + S(r, j) + s_sib(j, i, r),  i < r < j
		//           boundary: C(i->i) + C(j->i+1))
		//         + s_arc(j, i)
		ua := si.Stripe(ns, w, 0, 0, WidthMajor)
		ub := ss.Stripe(ns, w, 0, w, LengthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := 0; k < w-1; k++ {
				r := i + 1 + k
				t := tp.add2(la.At(s, k), lb.At(s, k))
				terms = append(terms, tp.add2(t, tp.leaf(sibs.At(b, i, j, r))))
			}
			// first-child case; the root row keeps the plain identity since
			// every shorter complete span at position 0 is already -Inf
			if i == 0 {
				terms = append(terms, tp.zero)
			} else {
				terms = append(terms, tp.add2(sc.At(j, j), sc.At(i, j-1)))
			}
			si.Set(j, i, tp.add2(tp.logSumExp(terms), leaf.At(i, j)))

			terms = terms[:0]
			terms = append(terms, tp.add2(sc.At(i, i), sc.At(j, i+1)))
			if i != 0 { // the root attaches exactly one dependent
				for k := 1; k < w; k++ {
					r := i + k
					t := tp.add2(ua.At(s, k), ub.At(s, k))
					terms = append(terms, tp.add2(t, tp.leaf(sibs.At(b, j, i, r))))
				}
			}
			si.Set(i, j, tp.add2(tp.logSumExp(terms), leaf.At(j, i)))
		}

		// S(i, j) = S(j, i) = logsumexp(C(i->r) + C(j->r+1)), i <= r < j
		ra := sc.Stripe(ns, w, 0, 0, WidthMajor)
		rb := sc.Stripe(ns, w, w, 1, WidthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(ra.At(s, k), rb.At(s, k)))
			}
			agg := tp.logSumExp(terms)
			ss.Set(j, i, agg)
			ss.Set(i, j, agg)
		}

		// complete spans, as in the first-order model
		ca := sc.Stripe(ns, w, 0, 0, LengthMajor)
		cb := si.Stripe(ns, w, w, 0, WidthMajor)
		cc := si.Stripe(ns, w, 0, 1, WidthMajor)
		cd := sc.Stripe(ns, w, 1, w, LengthMajor)
		for s := range ns {
			i, j := s, s+w
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(ca.At(s, k), cb.At(s, k)))
			}
			sc.Set(j, i, tp.logSumExp(terms))
			terms = terms[:0]
			for k := range w {
				terms = append(terms, tp.add2(cc.At(s, k), cd.At(s, k)))
			}
			sc.Set(i, j, tp.logSumExp(terms))
		}

		if w != length {
			sc.Set(0, w, tp.negInf)
		}
	}
	return leaf, si, ss, sc
}

// checkSibs validates the sibling half of a second-order target.
func checkSibs(target *Target2o, lens []int) error {
	if len(target.Sibs) != len(lens) {
		return fmt.Errorf("treecrf: sibling target batch size %d does not match mask batch size %d", len(target.Sibs), len(lens))
	}
	for b, sibs := range target.Sibs {
		l := lens[b]
		if len(sibs) < l+1 {
			return fmt.Errorf("treecrf: sibling target of batch element %d has %d entries, need %d", b, len(sibs), l+1)
		}
		for d := 1; d <= l; d++ {
			if s := sibs[d]; s < 0 || s > l || s == d {
				return fmt.Errorf("treecrf: sibling %d of position %d in batch element %d out of range", s, d, b)
			}
		}
	}
	return nil
}

// dep2oTapeHint estimates the node count of a second-order inside pass.
func dep2oTapeHint(n int) int {
	return 2*n*n*n + 8*n*n
}
