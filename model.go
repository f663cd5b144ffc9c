package snsl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/internal/conllu"
	"github.com/Jacob-Zhou/Say-not-to-Supervised-Learning/treecrf"
)

// Alphabet maps between feature strings and integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// Model holds the arc-factored parsing parameters: a feature alphabet and
// one weight per feature. The score of an arc is the sum of the weights of
// its features.
type Model struct {
	Features *Alphabet `json:"features"`
	Weights  []float64 `json:"weights"`
}

// NewModel creates a new empty model.
func NewModel() *Model {
	return &Model{Features: NewAlphabet()}
}

// arcFeatureIDs maps every arc of a sentence to its feature IDs. The result
// is indexed [dependent][head]; dependent 0 is the pseudo-root and has no
// entries. When add is true unseen features are added to the alphabet,
// otherwise they are skipped.
func (m *Model) arcFeatureIDs(sent *conllu.Sentence, add bool) [][][]int {
	l := sent.Len()
	ids := make([][][]int, l+1)
	for d := 1; d <= l; d++ {
		ids[d] = make([][]int, l+1)
		for h := 0; h <= l; h++ {
			if h == d {
				continue
			}
			feats := arcFeatures(sent, d, h)
			row := make([]int, 0, len(feats))
			for _, f := range feats {
				var id int
				if add {
					id = m.Features.Add(f)
				} else if id = m.Features.Get(f); id < 0 {
					continue
				}
				row = append(row, id)
			}
			ids[d][h] = row
		}
	}
	return ids
}

// scoreTensor builds the single-sentence score table for the tree CRF from
// precomputed feature IDs.
func (m *Model) scoreTensor(feats [][][]int, l int) *treecrf.Tensor {
	scores := treecrf.NewTensor(1, l+1)
	for d := 1; d <= l; d++ {
		for h := 0; h <= l; h++ {
			if h == d {
				continue
			}
			var s float64
			for _, id := range feats[d][h] {
				s += m.Weights[id]
			}
			scores.Set(0, d, h, s)
		}
	}
	return scores
}

// SaveModel serializes the model to JSON.
func SaveModel(model *Model, path string) error {
	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a model from JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if model.Features == nil {
		return nil, fmt.Errorf("model has no feature alphabet")
	}
	if model.Features.ToID == nil {
		model.Features.ToID = make(map[string]int, len(model.Features.ToStr))
		for id, s := range model.Features.ToStr {
			model.Features.ToID[s] = id
		}
	}
	if len(model.Weights) != model.Features.Size() {
		return nil, fmt.Errorf("model has %d weights for %d features", len(model.Weights), model.Features.Size())
	}
	return &model, nil
}
