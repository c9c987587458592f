package inference

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/txsentinel/internal/features"
	"github.com/mbd888/txsentinel/internal/metrics"
)

// ErrModelUnavailable is returned by every Classify call when no model is loaded.
var ErrModelUnavailable = errors.New("classifier model unavailable")

// Labels
const (
	LabelGenuine    = "Genuine"
	LabelSuspicious = "Suspicious"
	LabelUnknown    = "Unknown"
)

// LabelFor maps a model class to its label.
func LabelFor(class int) string {
	switch class {
	case 0:
		return LabelGenuine
	case 1:
		return LabelSuspicious
	default:
		return LabelUnknown
	}
}

// Result is a single classification.
type Result struct {
	Label         string             `json:"label"`
	Class         int                `json:"class"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelVersion  string             `json:"model_version"`
}

// Info describes the loaded model.
type Info struct {
	Name               string             `json:"name"`
	Version            string             `json:"version"`
	Classes            []string           `json:"classes"`
	FeatureNames       []string           `json:"feature_names"`
	FeatureImportances map[string]float64 `json:"feature_importances,omitempty"`
	Trees              int                `json:"trees"`
}

// Engine wraps a loaded forest. The zero model means unavailable.
type Engine struct {
	forest *Forest
}

// NewEngine creates an engine over a forest; nil yields an engine whose
// every call fails with ErrModelUnavailable.
func NewEngine(forest *Forest) *Engine {
	if forest != nil {
		metrics.ModelLoaded.Set(1)
	} else {
		metrics.ModelLoaded.Set(0)
	}
	return &Engine{forest: forest}
}

// Load reads the model at path. An empty path yields an unavailable engine.
func Load(path string) (*Engine, error) {
	if path == "" {
		return NewEngine(nil), nil
	}
	forest, err := LoadForest(path)
	if err != nil {
		return NewEngine(nil), err
	}
	return NewEngine(forest), nil
}

// Available reports whether a model is loaded.
func (e *Engine) Available() bool {
	return e != nil && e.forest != nil
}

// Classify runs the model over a feature vector.
func (e *Engine) Classify(ctx context.Context, v features.Vector) (*Result, error) {
	if !e.Available() {
		return nil, ErrModelUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	proba := e.forest.PredictProba(v.Array())
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())

	best := 0
	for i := range proba {
		if proba[i] > proba[best] {
			best = i
		}
	}

	res := &Result{
		Class:         e.forest.Classes[best],
		Confidence:    clamp01(proba[best]),
		Probabilities: make(map[string]float64, len(proba)),
		ModelVersion:  e.forest.Version,
	}
	res.Label = LabelFor(res.Class)
	for i, p := range proba {
		res.Probabilities[LabelFor(e.forest.Classes[i])] += p
	}
	return res, nil
}

// Info returns the loaded model's metadata.
func (e *Engine) Info() (*Info, error) {
	if !e.Available() {
		return nil, ErrModelUnavailable
	}
	f := e.forest
	info := &Info{
		Name:         f.Name,
		Version:      f.Version,
		FeatureNames: append([]string(nil), f.FeatureNames...),
		Trees:        len(f.Trees),
	}
	for _, c := range f.Classes {
		info.Classes = append(info.Classes, LabelFor(c))
	}
	if len(f.FeatureImportances) > 0 {
		info.FeatureImportances = make(map[string]float64, len(f.FeatureImportances))
		for i, imp := range f.FeatureImportances {
			info.FeatureImportances[f.FeatureNames[i]] = imp
		}
	}
	return info, nil
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
