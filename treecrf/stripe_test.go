package treecrf

import "testing"

func numberedGrid(n int) *Grid[int] {
	g := NewGrid(n, 0)
	for i := range n {
		for j := range n {
			g.Set(i, j, i*n+j)
		}
	}
	return g
}

func TestStripeWidthMajor(t *testing.T) {
	g := numberedGrid(5)

	// rows start at (1,1) and (2,2), extending along the row
	s := g.Stripe(2, 3, 1, 1, WidthMajor)
	want := [][]int{{6, 7, 8}, {12, 13, 14}}
	for r := range 2 {
		for k := range 3 {
			if got := s.At(r, k); got != want[r][k] {
				t.Errorf("At(%d,%d) = %d, want %d", r, k, got, want[r][k])
			}
		}
	}
}

func TestStripeLengthMajor(t *testing.T) {
	g := numberedGrid(5)

	// rows start at (0,0) and (1,1), extending down the column
	s := g.Stripe(2, 3, 0, 0, LengthMajor)
	want := [][]int{{0, 5, 10}, {6, 11, 16}}
	for r := range 2 {
		for k := range 3 {
			if got := s.At(r, k); got != want[r][k] {
				t.Errorf("At(%d,%d) = %d, want %d", r, k, got, want[r][k])
			}
		}
	}
}

func TestStripeAliasesGrid(t *testing.T) {
	g := numberedGrid(4)
	s := g.Stripe(2, 2, 0, 1, WidthMajor)

	s.Set(1, 1, -99)
	if g.At(1, 3) != -99 {
		t.Errorf("write through stripe did not reach grid cell (1,3): %d", g.At(1, 3))
	}
	g.Set(0, 1, -7)
	if s.At(0, 0) != -7 {
		t.Errorf("grid write not visible through stripe: %d", s.At(0, 0))
	}
}

func TestStripeOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range stripe")
		}
	}()
	g := numberedGrid(3)
	g.Stripe(3, 3, 1, 1, WidthMajor)
}
