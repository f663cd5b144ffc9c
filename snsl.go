// Package snsl trains and applies CRF dependency parsers that learn from
// full or partial head annotations.
//
// The probabilistic core lives in the treecrf package; this package adds a
// sparse arc-feature model on top of it.
//
//	p, _ := snsl.Load("model.json")
//	heads, _ := p.Predict(sentence)
//	for _, tok := range sentence.Tokens {
//	    fmt.Println(tok.Form, heads[tok.ID])
//	}
package snsl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/conllu"
	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/treecrf"
)

// Parser wraps a trained arc-factored dependency model.
type Parser struct {
	model *Model
}

// New loads the parser from "model.json", searching the current directory
// and parent directories up to the module root (where go.mod lives).
func New() (*Parser, error) {
	path, err := findModel("model.json")
	if err != nil {
		return nil, fmt.Errorf("snsl: %w", err)
	}
	return Load(path)
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("model.json not found")
}

// Load loads a trained parser from a model file.
func Load(path string) (*Parser, error) {
	model, err := LoadModel(path)
	if err != nil {
		return nil, fmt.Errorf("snsl: %w", err)
	}
	return &Parser{model: model}, nil
}

// Save writes the parser to a model file.
func (p *Parser) Save(path string) error {
	if p.model == nil {
		return fmt.Errorf("snsl: parser not initialized")
	}
	if err := SaveModel(p.model, path); err != nil {
		return fmt.Errorf("snsl: %w", err)
	}
	return nil
}

// Predict returns the predicted head of every token, indexed by token
// position with entry 0 unused. Each head is the marginal-probability argmax
// for its token; the result is not constrained to form a tree.
func (p *Parser) Predict(sent *conllu.Sentence) ([]int, error) {
	probs, err := p.Marginals(sent)
	if err != nil {
		return nil, err
	}
	l := sent.Len()
	heads := make([]int, l+1)
	heads[0] = -1
	for d := 1; d <= l; d++ {
		best, bestP := 0, probs.At(0, d, 0)
		for h := 1; h <= l; h++ {
			if h == d {
				continue
			}
			if p := probs.At(0, d, h); p > bestP {
				best, bestP = h, p
			}
		}
		heads[d] = best
	}
	return heads, nil
}

// Marginals returns the arc marginal probabilities of a sentence: entry
// (0, d, h) is the probability that token d attaches to h under the model's
// distribution over projective trees.
func (p *Parser) Marginals(sent *conllu.Sentence) (*treecrf.Tensor, error) {
	if p.model == nil {
		return nil, fmt.Errorf("snsl: parser not initialized")
	}
	l := sent.Len()
	if l == 0 {
		return nil, fmt.Errorf("snsl: empty sentence")
	}

	feats := p.model.arcFeatureIDs(sent, false)
	scores := p.model.scoreTensor(feats, l)
	mask := treecrf.NewMask(1, l+1)
	mask.SetLen(0, l)

	res, err := treecrf.Dependency{}.Forward(scores, mask, nil, treecrf.Options{Marginals: true})
	if err != nil {
		return nil, fmt.Errorf("snsl: %w", err)
	}
	return res.Probs, nil
}

// ParseFile reads a CoNLL-U file, predicts a head for every token, and
// writes the result to out.
func (p *Parser) ParseFile(in, out string) error {
	sents, err := conllu.ReadFile(in)
	if err != nil {
		return fmt.Errorf("snsl: %w", err)
	}
	for _, sent := range sents {
		heads, err := p.Predict(sent)
		if err != nil {
			return err
		}
		for i := range sent.Tokens {
			sent.Tokens[i].Head = heads[sent.Tokens[i].ID]
		}
	}
	if err := conllu.WriteFile(out, sents); err != nil {
		return fmt.Errorf("snsl: %w", err)
	}
	return nil
}
