// Package inference classifies feature vectors with a pre-trained
// random-forest model.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mbd888/txsentinel/internal/features"
)

// leafMarker is the child index of a leaf node in the exported tree arrays.
const leafMarker = -1

// Tree is one decision tree in the exported array layout: node i splits on
// Feature[i] at Threshold[i] and goes Left when x <= threshold. Value[i]
// holds the per-class sample counts at the node.
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

// Forest is a random-forest ensemble exported as JSON.
type Forest struct {
	Name               string    `json:"name"`
	Version            string    `json:"version"`
	FeatureNames       []string  `json:"feature_names"`
	Classes            []int     `json:"classes"`
	FeatureImportances []float64 `json:"feature_importances"`
	Trees              []Tree    `json:"trees"`
}

// LoadForest reads and validates a forest file.
func LoadForest(path string) (*Forest, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied model path
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks that the forest matches the feature contract and that
// every tree is well formed.
func (f *Forest) Validate() error {
	if len(f.FeatureNames) != features.Width {
		return fmt.Errorf("model has %d features, want %d", len(f.FeatureNames), features.Width)
	}
	for i, name := range features.FieldNames {
		if f.FeatureNames[i] != name {
			return fmt.Errorf("feature %d is %q, want %q", i, f.FeatureNames[i], name)
		}
	}
	if len(f.Classes) < 2 {
		return errors.New("model needs at least two classes")
	}
	if len(f.Trees) == 0 {
		return errors.New("model has no trees")
	}
	if len(f.FeatureImportances) != 0 && len(f.FeatureImportances) != features.Width {
		return fmt.Errorf("model has %d feature importances, want %d", len(f.FeatureImportances), features.Width)
	}

	for t, tree := range f.Trees {
		n := len(tree.Feature)
		if n == 0 || len(tree.Threshold) != n || len(tree.Left) != n || len(tree.Right) != n || len(tree.Value) != n {
			return fmt.Errorf("tree %d: node arrays differ in length", t)
		}
		for i := 0; i < n; i++ {
			if tree.Left[i] == leafMarker {
				if len(tree.Value[i]) != len(f.Classes) {
					return fmt.Errorf("tree %d node %d: leaf has %d class counts, want %d", t, i, len(tree.Value[i]), len(f.Classes))
				}
				continue
			}
			// children always follow their parent, which rules out cycles
			if tree.Left[i] <= i || tree.Left[i] >= n || tree.Right[i] <= i || tree.Right[i] >= n {
				return fmt.Errorf("tree %d node %d: child index out of range", t, i)
			}
			if tree.Feature[i] < 0 || tree.Feature[i] >= features.Width {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", t, i, tree.Feature[i])
			}
		}
	}
	return nil
}

// PredictProba averages the normalized leaf class distributions of all trees.
func (f *Forest) PredictProba(x [features.Width]float64) []float64 {
	proba := make([]float64, len(f.Classes))
	for i := range f.Trees {
		leaf := f.Trees[i].leafValue(x)
		var total float64
		for _, c := range leaf {
			total += c
		}
		if total == 0 {
			continue
		}
		for c, count := range leaf {
			proba[c] += count / total
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba
}

func (t *Tree) leafValue(x [features.Width]float64) []float64 {
	node := 0
	for t.Left[node] != leafMarker {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}
