package snsl

import (
	"gonum.org/v1/gonum/floats"
)

// lbfgs implements the L-BFGS two-loop recursion.
type lbfgs struct {
	n    int // number of variables
	m    int // memory size
	s    [][]float64
	y    [][]float64
	rho  []float64
	k    int
	size int
}

func newLBFGS(n, m int) *lbfgs {
	return &lbfgs{
		n:   n,
		m:   m,
		s:   make([][]float64, m),
		y:   make([][]float64, m),
		rho: make([]float64, m),
	}
}

func (l *lbfgs) update(s, y []float64) {
	sy := floats.Dot(s, y)
	if sy <= 0 {
		return
	}
	idx := l.k % l.m
	l.s[idx] = append([]float64(nil), s...)
	l.y[idx] = append([]float64(nil), y...)
	l.rho[idx] = 1.0 / sy
	l.k++
	if l.size < l.m {
		l.size++
	}
}

func (l *lbfgs) computeDirection(pg []float64) []float64 {
	q := append([]float64(nil), pg...)

	if l.size == 0 {
		floats.Scale(-1, q)
		return q
	}

	alpha := make([]float64, l.size)

	// First loop
	for i := l.size - 1; i >= 0; i-- {
		idx := (l.k - 1 - (l.size - 1 - i)) % l.m
		if idx < 0 {
			idx += l.m
		}
		alpha[i] = l.rho[idx] * floats.Dot(l.s[idx], q)
		floats.AddScaled(q, -alpha[i], l.y[idx])
	}

	// Scale by H_0 = (s_k^T y_k) / (y_k^T y_k)
	latestIdx := (l.k - 1) % l.m
	if latestIdx < 0 {
		latestIdx += l.m
	}
	yy := floats.Dot(l.y[latestIdx], l.y[latestIdx])
	if yy > 0 {
		sy := floats.Dot(l.s[latestIdx], l.y[latestIdx])
		floats.Scale(sy/yy, q)
	}

	// Second loop
	for i := range l.size {
		idx := (l.k - l.size + i) % l.m
		if idx < 0 {
			idx += l.m
		}
		beta := l.rho[idx] * floats.Dot(l.y[idx], q)
		floats.AddScaled(q, alpha[i]-beta, l.s[idx])
	}

	// Negate for descent direction
	floats.Scale(-1, q)
	return q
}

// pseudoGradient computes the OWL-QN pseudo-gradient of the L1-regularized
// objective at w. With c1 == 0 it is the plain gradient.
func pseudoGradient(w, grad []float64, c1 float64) []float64 {
	pg := append([]float64(nil), grad...)
	if c1 == 0 {
		return pg
	}
	for i := range w {
		switch {
		case w[i] > 0:
			pg[i] = grad[i] + c1
		case w[i] < 0:
			pg[i] = grad[i] - c1
		default:
			switch {
			case grad[i]+c1 < 0:
				pg[i] = grad[i] + c1
			case grad[i]-c1 > 0:
				pg[i] = grad[i] - c1
			default:
				pg[i] = 0
			}
		}
	}
	return pg
}

// owlqnLineSearch performs a backtracking line search, projecting trial
// points onto the orthant of the current iterate when c1 > 0.
func owlqnLineSearch(w, dir []float64, fVal float64, pg []float64, objFunc func([]float64) float64, c1 float64) float64 {
	dirDeriv := floats.Dot(dir, pg)
	if dirDeriv >= 0 {
		return 0
	}

	step := 1.0
	c := 1e-4 // Armijo constant
	wNew := make([]float64, len(w))

	for trial := 0; trial < 20; trial++ {
		floats.AddScaledTo(wNew, w, step, dir)
		if c1 > 0 {
			for i := range wNew {
				if wNew[i]*w[i] < 0 {
					wNew[i] = 0
				}
			}
		}

		fNew := objFunc(wNew)
		if fNew <= fVal+c*step*dirDeriv {
			return step
		}
		step *= 0.5
	}
	return step // return last tried step even if not sufficient decrease
}
