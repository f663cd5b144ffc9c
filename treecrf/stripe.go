package treecrf

import "fmt"

// Grid is a square table stored row-major in a flat buffer. The inside
// algorithms use it for their dynamic-programming tables and read groups of
// split-point cells through diagonal stripe views.
type Grid[T any] struct {
	N    int
	Cell []T
}

// NewGrid allocates an N x N grid with every cell set to fill.
func NewGrid[T any](n int, fill T) *Grid[T] {
	g := &Grid[T]{N: n, Cell: make([]T, n*n)}
	for i := range g.Cell {
		g.Cell[i] = fill
	}
	return g
}

// At returns cell (i, j).
func (g *Grid[T]) At(i, j int) T { return g.Cell[i*g.N+j] }

// Set writes cell (i, j).
func (g *Grid[T]) Set(i, j int, v T) { g.Cell[i*g.N+j] = v }

// Stripe orientation: a width-major stripe extends along the row, a
// length-major stripe extends down the column.
const (
	LengthMajor = 0
	WidthMajor  = 1
)

// Stripe is a zero-copy diagonal band view of a Grid: n rows of w cells,
// where row r starts at grid cell (off0+r, off1+r). Reads and writes
// through the view alias the underlying grid.
type Stripe[T any] struct {
	g          *Grid[T]
	n, w       int
	base       int // off0*N + off1
	rowStride  int // N + 1, one step down the diagonal
	cellStride int // 1 for width-major, N for length-major
}

// Stripe returns a diagonal stripe view of n rows and w cells per row,
// offset by (off0, off1). With dim == WidthMajor, element (r, k) aliases
// grid cell (off0+r, off1+r+k); with dim == LengthMajor it aliases cell
// (off0+r+k, off1+r).
//
//	g := NewGrid(5, 0)       // 5x5, cells numbered row-major
//	g.Stripe(2, 3, 1, 1, WidthMajor)  // rows {(1,1) (1,2) (1,3)}, {(2,2) (2,3) (2,4)}
//	g.Stripe(2, 3, 0, 0, LengthMajor) // rows {(0,0) (1,0) (2,0)}, {(1,1) (2,1) (3,1)}
//
// Out-of-range views are programmer errors and panic.
func (g *Grid[T]) Stripe(n, w, off0, off1, dim int) Stripe[T] {
	s := Stripe[T]{
		g:          g,
		n:          n,
		w:          w,
		base:       off0*g.N + off1,
		rowStride:  g.N + 1,
		cellStride: 1,
	}
	if dim == LengthMajor {
		s.cellStride = g.N
	}
	last := s.base + (n-1)*s.rowStride + (w-1)*s.cellStride
	if n < 1 || w < 1 || s.base < 0 || last >= g.N*g.N {
		panic(fmt.Sprintf("treecrf: stripe (n=%d w=%d offset=(%d,%d) dim=%d) out of range for %dx%d grid",
			n, w, off0, off1, dim, g.N, g.N))
	}
	return s
}

// At returns stripe element (r, k).
func (s Stripe[T]) At(r, k int) T {
	return s.g.Cell[s.base+r*s.rowStride+k*s.cellStride]
}

// Set writes stripe element (r, k) through to the underlying grid.
func (s Stripe[T]) Set(r, k int, v T) {
	s.g.Cell[s.base+r*s.rowStride+k*s.cellStride] = v
}
