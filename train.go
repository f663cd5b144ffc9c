package snsl

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/conllu"
	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/treecrf"
)

// TrainConfig holds training hyperparameters.
type TrainConfig struct {
	C1            float64 // L1 regularization
	C2            float64 // L2 regularization
	MaxIterations int
	Epsilon       float64 // convergence threshold
}

// DefaultTrainConfig returns the default training config.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		C1:            0,
		C2:            1e-4,
		MaxIterations: 100,
		Epsilon:       1e-5,
	}
}

// TrainFile trains a parser on a CoNLL-U treebank file.
func TrainFile(path string, config TrainConfig) (*Parser, error) {
	sents, err := conllu.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snsl: %w", err)
	}
	return Train(sents, config)
}

// Train trains an arc-factored parser by minimizing the tree CRF negative
// log-likelihood with L-BFGS (OWL-QN when C1 > 0). Sentences may be fully
// annotated or carry unannotated heads; in the latter case the gold term is
// the log partition over all trees agreeing with the annotated arcs.
func Train(sents []*conllu.Sentence, config TrainConfig) (*Parser, error) {
	if len(sents) == 0 {
		return nil, fmt.Errorf("snsl: no training sentences")
	}

	model := NewModel()
	tr, err := newTrainer(model, sents)
	if err != nil {
		return nil, fmt.Errorf("snsl: %w", err)
	}

	numWeights := model.Features.Size()
	model.Weights = make([]float64, numWeights)
	w := model.Weights

	opt := newLBFGS(numWeights, 10)
	for iter := range config.MaxIterations {
		nll, grad := tr.objGrad(w, config)
		slog.Debug("training iteration", "iteration", iter+1, "loss", nll/float64(tr.totalTokens))

		pg := pseudoGradient(w, grad, config.C1)

		dir := opt.computeDirection(pg)
		if config.C1 > 0 {
			// constrain the direction to the orthant of the pseudo-gradient
			for i := range dir {
				if dir[i]*pg[i] > 0 {
					dir[i] = 0
				}
			}
		}

		step := owlqnLineSearch(w, dir, nll, pg, func(wNew []float64) float64 {
			return tr.obj(wNew, config)
		}, config.C1)
		if step == 0 {
			slog.Warn("line search failed, stopping")
			break
		}

		prevW := append([]float64(nil), w...)
		floats.AddScaled(w, step, dir)
		if config.C1 > 0 {
			for i := range w {
				if w[i]*prevW[i] < 0 {
					w[i] = 0
				}
			}
		}

		s := make([]float64, numWeights)
		floats.SubTo(s, w, prevW)

		_, newGrad := tr.objGrad(w, config)
		newPG := pseudoGradient(w, newGrad, config.C1)
		y := make([]float64, numWeights)
		floats.SubTo(y, newPG, pg)
		opt.update(s, y)

		if floats.Norm(newPG, math.Inf(1)) < config.Epsilon {
			slog.Debug("converged", "iteration", iter+1)
			break
		}
	}

	model.Weights = w
	return &Parser{model: model}, nil
}

// trainer holds the precomputed per-sentence structures of a training run.
// All sentences are padded into one batch so the CRF forward passes run
// concurrently across the corpus.
type trainer struct {
	model       *Model
	feats       [][][][]int // [sentence][dependent][head] feature IDs
	lens        []int
	heads       [][]int // annotated heads, -1 for unknown
	mask        *treecrf.Mask
	n           int // padded table width
	totalTokens int
}

func newTrainer(model *Model, sents []*conllu.Sentence) (*trainer, error) {
	tr := &trainer{model: model}

	maxLen := 0
	for _, sent := range sents {
		if sent.Len() > maxLen {
			maxLen = sent.Len()
		}
	}
	tr.n = maxLen + 1

	crf := treecrf.Dependency{}
	for i, sent := range sents {
		l := sent.Len()
		if l == 0 {
			continue
		}
		heads := sent.Heads()

		// a sentence whose annotation admits no projective tree cannot
		// contribute a finite gold term
		mask := treecrf.NewMask(1, l+1)
		mask.SetLen(0, l)
		probe := treecrf.NewTensor(1, l+1)
		maskArcs(probe, 0, heads, l)
		res, err := crf.Forward(probe, mask, nil, treecrf.Options{})
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i+1, err)
		}
		if math.IsInf(res.LogZ, -1) {
			slog.Warn("skipping sentence with no admissible projective tree", "sentence", i+1)
			continue
		}

		tr.feats = append(tr.feats, model.arcFeatureIDs(sent, true))
		tr.lens = append(tr.lens, l)
		tr.heads = append(tr.heads, heads)
		tr.totalTokens += l
	}
	if len(tr.lens) == 0 {
		return nil, fmt.Errorf("no usable training sentences")
	}

	tr.mask = treecrf.NewMask(len(tr.lens), tr.n)
	for b, l := range tr.lens {
		tr.mask.SetLen(b, l)
	}
	return tr, nil
}

// forward runs the free and annotation-restricted inside passes over the
// whole corpus batch.
func (tr *trainer) forward(w []float64, marginals bool) (free, restr *treecrf.Result, err error) {
	scores := treecrf.NewTensor(len(tr.lens), tr.n)
	for b, l := range tr.lens {
		feats := tr.feats[b]
		for d := 1; d <= l; d++ {
			for h := 0; h <= l; h++ {
				if h == d {
					continue
				}
				var s float64
				for _, id := range feats[d][h] {
					s += w[id]
				}
				scores.Set(b, d, h, s)
			}
		}
	}

	restricted := &treecrf.Tensor{B: scores.B, N: scores.N, Data: append([]float64(nil), scores.Data...)}
	for b, l := range tr.lens {
		maskArcs(restricted, b, tr.heads[b], l)
	}

	crf := treecrf.Dependency{}
	opts := treecrf.Options{Marginals: marginals}
	free, err = crf.Forward(scores, tr.mask, nil, opts)
	if err != nil {
		return nil, nil, err
	}
	restr, err = crf.Forward(restricted, tr.mask, nil, opts)
	if err != nil {
		return nil, nil, err
	}
	return free, restr, nil
}

// objGrad computes the regularized negative log-likelihood and its gradient.
// The gradient of the log-likelihood in each arc score is the difference
// between the free and the annotation-restricted marginal of the arc.
func (tr *trainer) objGrad(w []float64, config TrainConfig) (float64, []float64) {
	free, restr, err := tr.forward(w, true)
	if err != nil {
		panic(err) // shapes were validated in newTrainer
	}

	grad := make([]float64, len(w))
	for b, l := range tr.lens {
		feats := tr.feats[b]
		for d := 1; d <= l; d++ {
			for h := 0; h <= l; h++ {
				if h == d {
					continue
				}
				p := free.Probs.At(b, d, h) - restr.Probs.At(b, d, h)
				for _, id := range feats[d][h] {
					grad[id] += p
				}
			}
		}
	}

	nll := free.LogZ - restr.LogZ
	if config.C2 > 0 {
		nll += 0.5 * config.C2 * floats.Dot(w, w)
		floats.AddScaled(grad, config.C2, w)
	}
	if config.C1 > 0 {
		// the L1 term enters the objective only; its subgradient is
		// handled by the OWL-QN pseudo-gradient
		for _, v := range w {
			nll += config.C1 * math.Abs(v)
		}
	}
	return nll, grad
}

// obj computes the regularized objective without the gradient, for line
// search trials.
func (tr *trainer) obj(w []float64, config TrainConfig) float64 {
	free, restr, err := tr.forward(w, false)
	if err != nil {
		panic(err)
	}
	nll := free.LogZ - restr.LogZ
	if config.C2 > 0 {
		nll += 0.5 * config.C2 * floats.Dot(w, w)
	}
	if config.C1 > 0 {
		for _, v := range w {
			nll += config.C1 * math.Abs(v)
		}
	}
	return nll
}

// maskArcs pins every arc excluded by the head annotation to -Inf, so that
// the inside pass over the result sums only trees agreeing with it.
func maskArcs(scores *treecrf.Tensor, b int, heads []int, l int) {
	for d := 1; d <= l; d++ {
		if heads[d] < 0 {
			continue
		}
		for h := 0; h <= l; h++ {
			if h != heads[d] {
				scores.Set(b, d, h, math.Inf(-1))
			}
		}
	}
}
