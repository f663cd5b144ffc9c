// Package treecrf implements tree-structured Conditional Random Fields for
// dependency and constituency parsing.
//
// Three models share one pattern: a bottom-up inside algorithm fills
// triangular dynamic-programming tables with log-sum-exp aggregates over all
// derivations of each span, the log partition function logZ is read from the
// whole-sentence cell, and marginal probabilities are obtained by
// reverse-mode differentiation of logZ with respect to the input scores.
// Impossible structures carry a log-potential of -Inf; gradients through
// such terms are exactly zero by construction.
//
//	crf := treecrf.Dependency{}
//	res, _ := crf.Forward(scores, mask, heads, treecrf.Options{Marginals: true})
//	fmt.Println(res.LogZ)            // log partition function
//	fmt.Println(res.Probs.At(0, 2, 1)) // P(head(2) = 1)
package treecrf

import (
	"fmt"
	"math"
)

// Tensor is a batched square score table, stored row-major in a flat buffer.
// For dependency models entry (b, d, h) is the unnormalized log-potential of
// the arc with head h and dependent d; for the constituency model entry
// (b, i, j) scores the span over fencepost positions i..j.
type Tensor struct {
	B, N int
	Data []float64
}

// NewTensor allocates a zero-filled B x N x N tensor.
func NewTensor(b, n int) *Tensor {
	return &Tensor{B: b, N: n, Data: make([]float64, b*n*n)}
}

// At returns the entry at (b, i, j).
func (t *Tensor) At(b, i, j int) float64 {
	return t.Data[(b*t.N+i)*t.N+j]
}

// Set writes the entry at (b, i, j).
func (t *Tensor) Set(b, i, j int, v float64) {
	t.Data[(b*t.N+i)*t.N+j] = v
}

// Tensor3 is a batched cubic score table for second-order models.
// Entry (b, d, h, s) is the log-potential of attaching dependent d to head h
// when s was the previously attached sibling on the same side.
type Tensor3 struct {
	B, N int
	Data []float64
}

// NewTensor3 allocates a zero-filled B x N x N x N tensor.
func NewTensor3(b, n int) *Tensor3 {
	return &Tensor3{B: b, N: n, Data: make([]float64, b*n*n*n)}
}

// At returns the entry at (b, d, h, s).
func (t *Tensor3) At(b, d, h, s int) float64 {
	return t.Data[((b*t.N+d)*t.N+h)*t.N+s]
}

// Set writes the entry at (b, d, h, s).
func (t *Tensor3) Set(b, d, h, s int, v float64) {
	t.Data[((b*t.N+d)*t.N+h)*t.N+s] = v
}

// Mask marks the valid token positions of each sentence in a batch.
// Position 0 is the pseudo-root and must be unset; a sentence of length L
// has exactly positions 1..L set and everything past L unset.
type Mask struct {
	B, N int
	Data []bool
}

// NewMask allocates an all-false B x N mask.
func NewMask(b, n int) *Mask {
	return &Mask{B: b, N: n, Data: make([]bool, b*n)}
}

// At returns whether position i of batch element b is valid.
func (m *Mask) At(b, i int) bool { return m.Data[b*m.N+i] }

// Set marks position i of batch element b.
func (m *Mask) Set(b, i int, v bool) { m.Data[b*m.N+i] = v }

// SetLen marks positions 1..l of batch element b as valid.
func (m *Mask) SetLen(b, l int) {
	for i := 1; i <= l; i++ {
		m.Set(b, i, true)
	}
}

// lens validates the mask invariant and returns the per-sentence lengths.
// A sentence of length 0 is rejected: a tree needs at least one node below
// the root.
func (m *Mask) lens() ([]int, error) {
	lens := make([]int, m.B)
	for b := range m.B {
		if m.At(b, 0) {
			return nil, fmt.Errorf("treecrf: mask position 0 of batch element %d is set; position 0 is the root", b)
		}
		l := 0
		for i := 1; i < m.N; i++ {
			if m.At(b, i) {
				if i != l+1 {
					return nil, fmt.Errorf("treecrf: mask of batch element %d is not contiguous at position %d", b, i)
				}
				l = i
			}
		}
		if l == 0 {
			return nil, fmt.Errorf("treecrf: batch element %d has length 0", b)
		}
		lens[b] = l
	}
	return lens, nil
}

// SpanMask marks the valid chart cells of each sentence for the constituency
// model. Cell (b, i, j) is valid iff 0 <= i < j <= L for a sentence of L
// tokens; the sentence length is recovered from the first row.
type SpanMask struct {
	B, N int
	Data []bool
}

// NewSpanMask allocates an all-false B x N x N span mask.
func NewSpanMask(b, n int) *SpanMask {
	return &SpanMask{B: b, N: n, Data: make([]bool, b*n*n)}
}

// At returns whether span (i, j) of batch element b is valid.
func (m *SpanMask) At(b, i, j int) bool { return m.Data[(b*m.N+i)*m.N+j] }

// Set marks span (i, j) of batch element b.
func (m *SpanMask) Set(b, i, j int, v bool) { m.Data[(b*m.N+i)*m.N+j] = v }

// SetLen marks all spans of a sentence with l tokens as valid.
func (m *SpanMask) SetLen(b, l int) {
	for i := 0; i < l; i++ {
		for j := i + 1; j <= l; j++ {
			m.Set(b, i, j, true)
		}
	}
}

// lens reads per-sentence lengths from the first mask row.
func (m *SpanMask) lens() ([]int, error) {
	lens := make([]int, m.B)
	for b := range m.B {
		l := 0
		for j := 1; j < m.N; j++ {
			if m.At(b, 0, j) {
				l++
			}
		}
		if l == 0 {
			return nil, fmt.Errorf("treecrf: batch element %d has length 0", b)
		}
		if l >= m.N {
			return nil, fmt.Errorf("treecrf: batch element %d length %d exceeds table width %d", b, l, m.N)
		}
		lens[b] = l
	}
	return lens, nil
}

// Options selects the optional outputs of a Forward call.
type Options struct {
	// Marginals requests edge marginal probabilities, computed by
	// back-propagating through logZ. When false, Probs holds the raw input
	// scores.
	Marginals bool
	// Partial treats the target as a per-position candidate restriction
	// instead of a fully observed tree: a head index of -1 means the gold
	// head is unknown and every candidate is allowed.
	Partial bool
}

// Result holds the outputs of a Forward call.
type Result struct {
	// LogZ is the log partition function, summed over the batch.
	LogZ float64
	// Loss is (logZ - goldScore) / totalValidPositions, summed over the
	// batch. Only meaningful when a target was supplied.
	Loss float64
	// Probs holds marginal probabilities when Options.Marginals was set,
	// and the raw input scores otherwise.
	Probs *Tensor
}

var negInf = math.Inf(-1)
