package snsl

import (
	"fmt"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/conllu"
	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/textutil"
)

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	// SkipPunct excludes punctuation tokens from the score, the usual
	// convention for dependency evaluation.
	SkipPunct bool
}

// Metric accumulates attachment counts over a corpus.
type Metric struct {
	Correct int
	Total   int
}

// UAS returns the unlabeled attachment score.
func (m Metric) UAS() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Total)
}

func (m Metric) String() string {
	return fmt.Sprintf("UAS: %.2f%% (%d/%d)", 100*m.UAS(), m.Correct, m.Total)
}

// EvaluateFile scores the parser against a CoNLL-U treebank file.
func (p *Parser) EvaluateFile(path string, config EvalConfig) (Metric, error) {
	sents, err := conllu.ReadFile(path)
	if err != nil {
		return Metric{}, fmt.Errorf("snsl: %w", err)
	}
	return p.Evaluate(sents, config)
}

// Evaluate computes the unlabeled attachment score of the parser's
// predictions against the gold heads. Tokens without a gold head are
// skipped.
func (p *Parser) Evaluate(sents []*conllu.Sentence, config EvalConfig) (Metric, error) {
	var m Metric
	for _, sent := range sents {
		if sent.Len() == 0 {
			continue
		}
		heads, err := p.Predict(sent)
		if err != nil {
			return Metric{}, err
		}
		for _, tok := range sent.Tokens {
			if tok.Head == conllu.Unannotated {
				continue
			}
			if config.SkipPunct && textutil.IsPunct(tok.Form) {
				continue
			}
			if heads[tok.ID] == tok.Head {
				m.Correct++
			}
			m.Total++
		}
	}
	return m, nil
}
