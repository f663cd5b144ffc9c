package treecrf

import (
	"math"
	"math/rand"
	"testing"
)

func randomSibScores(rng *rand.Rand, b, n int) *Tensor3 {
	sibs := NewTensor3(b, n)
	for i := range sibs.Data {
		sibs.Data[i] = rng.NormFloat64()
	}
	return sibs
}

// sibSeq derives the adjacent-sibling index of every dependent: for each
// head, dependents on one side are chained outward, the innermost one
// having no sibling (index 0).
func sibSeq(heads []int) []int {
	l := len(heads) - 1
	sibs := make([]int, l+1)
	for h := 0; h <= l; h++ {
		prevLeft, prevRight := 0, 0
		// left dependents from the innermost outward
		for d := h - 1; d >= 1; d-- {
			if heads[d] == h {
				sibs[d] = prevLeft
				prevLeft = d
			}
		}
		for d := h + 1; d <= l; d++ {
			if heads[d] == h {
				sibs[d] = prevRight
				prevRight = d
			}
		}
	}
	return sibs
}

func treeScore2o(arcs *Tensor, sibs *Tensor3, b int, heads []int) float64 {
	s := treeScore(arcs, b, heads)
	for d, sib := range sibSeq(heads) {
		if sib > 0 {
			s += sibs.At(b, d, heads[d], sib)
		}
	}
	return s
}

func bruteLogZ2o(arcs *Tensor, sibs *Tensor3, b, l int, allow func(heads []int) bool) float64 {
	logZ := math.Inf(-1)
	enumTrees(l, func(heads []int) {
		if allow != nil && !allow(heads) {
			return
		}
		logZ = logAdd(logZ, treeScore2o(arcs, sibs, b, heads))
	})
	return logZ
}

func TestDependency2oLogZMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for l := 1; l <= 4; l++ {
		arcs := randomDepScores(rng, 1, l+1)
		sibs := randomSibScores(rng, 1, l+1)
		res, err := Dependency2o{}.Forward(arcs, sibs, depMask(l), nil, Options{})
		if err != nil {
			t.Fatal(err)
		}
		want := bruteLogZ2o(arcs, sibs, 0, l, nil)
		if math.Abs(res.LogZ-want) > 1e-9 {
			t.Errorf("l=%d: logZ = %v, want %v", l, res.LogZ, want)
		}
	}
}

func TestDependency2oReducesToFirstOrder(t *testing.T) {
	// zero sibling scores make both models define the same distribution
	rng := rand.New(rand.NewSource(12))
	const l = 4
	arcs := randomDepScores(rng, 1, l+1)
	sibs := NewTensor3(1, l+1)

	first, err := Dependency{}.Forward(arcs, depMask(l), nil, Options{Marginals: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := Dependency2o{}.Forward(arcs, sibs, depMask(l), nil, Options{Marginals: true})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(first.LogZ-second.LogZ) > 1e-9 {
		t.Errorf("logZ: first order %v, second order %v", first.LogZ, second.LogZ)
	}
	for d := 1; d <= l; d++ {
		for h := 0; h <= l; h++ {
			if math.Abs(first.Probs.At(0, d, h)-second.Probs.At(0, d, h)) > 1e-9 {
				t.Errorf("marginal(%d,%d): first order %v, second order %v",
					d, h, first.Probs.At(0, d, h), second.Probs.At(0, d, h))
			}
		}
	}
}

func TestDependency2oSiblingTableSymmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	const l = 5
	arcs := randomDepScores(rng, 1, l+1)
	sibs := randomSibScores(rng, 1, l+1)

	tp := newTape(dep2oTapeHint(l + 1))
	_, _, ss, _ := dep2oInside(tp, arcs, sibs, 0, l, nil)
	for i := 0; i <= l; i++ {
		for j := 0; j <= l; j++ {
			if ss.At(i, j) != ss.At(j, i) {
				t.Errorf("sibling table cell (%d,%d) is not the node of (%d,%d)", i, j, j, i)
			}
		}
	}
}

func TestDependency2oMarginalsNormalize(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	const l = 4
	arcs := randomDepScores(rng, 1, l+1)
	sibs := randomSibScores(rng, 1, l+1)

	res, err := Dependency2o{}.Forward(arcs, sibs, depMask(l), nil, Options{Marginals: true})
	if err != nil {
		t.Fatal(err)
	}
	for d := 1; d <= l; d++ {
		sum := 0.0
		for h := 0; h <= l; h++ {
			sum += res.Probs.At(0, d, h)
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("marginals of dependent %d sum to %v, want 1", d, sum)
		}
	}
}

func TestDependency2oLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	const l = 3
	arcs := randomDepScores(rng, 1, l+1)
	sibs := randomSibScores(rng, 1, l+1)
	heads := []int{-1, 2, 0, 2}
	target := &Target2o{Arcs: [][]int{heads}, Sibs: [][]int{sibSeq(heads)}}

	res, err := Dependency2o{}.Forward(arcs, sibs, depMask(l), target, Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := (bruteLogZ2o(arcs, sibs, 0, l, nil) - treeScore2o(arcs, sibs, 0, heads)) / float64(l)
	if math.Abs(res.Loss-want) > 1e-9 {
		t.Errorf("loss = %v, want %v", res.Loss, want)
	}
}

func TestDependency2oPartialLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(16))
	const l = 3
	arcs := randomDepScores(rng, 1, l+1)
	sibs := randomSibScores(rng, 1, l+1)
	cands := [][]int{{-1, -1, 0, -1}}

	res, err := Dependency2o{}.Forward(arcs, sibs, depMask(l), &Target2o{Arcs: cands}, Options{Partial: true})
	if err != nil {
		t.Fatal(err)
	}
	logZ := bruteLogZ2o(arcs, sibs, 0, l, nil)
	restricted := bruteLogZ2o(arcs, sibs, 0, l, func(heads []int) bool { return heads[2] == 0 })
	want := (logZ - restricted) / float64(l)
	if math.Abs(res.Loss-want) > 1e-9 {
		t.Errorf("partial loss = %v, want %v", res.Loss, want)
	}
}
