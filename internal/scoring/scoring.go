// Package scoring computes cardiac risk from a feature vector using a
// logistic model exported to JSON by the training pipeline, and produces the
// signed per-feature impacts behind each score.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/linnemanlabs/callout/internal/alert"
)

// FeatureParam is one model coefficient with the standardization parameters
// it was trained against.
type FeatureParam struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
}

// Model is the on-disk shape of a trained model export.
type Model struct {
	Bias     float64        `json:"bias"`
	Features []FeatureParam `json:"features"`
}

// Scorer scores feature vectors against a loaded model.
type Scorer struct {
	model Model
}

// New validates a model and returns a ready Scorer.
func New(m Model) (*Scorer, error) {
	if len(m.Features) == 0 {
		return nil, fmt.Errorf("model has no features")
	}
	for _, f := range m.Features {
		if f.Name == "" {
			return nil, fmt.Errorf("model feature with empty name")
		}
		if f.Std <= 0 {
			return nil, fmt.Errorf("feature %s: std must be positive, got %g", f.Name, f.Std)
		}
	}
	return &Scorer{model: m}, nil
}

// Load reads and validates a model export from disk.
func Load(path string) (*Scorer, error) {
	body, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var m Model
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return New(m)
}

// Score computes risk in [0,1] for a feature vector plus one signed impact
// per model feature, in model order. A missing feature falls back to its
// training mean and contributes zero impact.
func (s *Scorer) Score(features map[string]float64) *alert.Assessment {
	z := s.model.Bias
	factors := make([]alert.Factor, 0, len(s.model.Features))

	for _, f := range s.model.Features {
		x, ok := features[f.Name]
		if !ok {
			x = f.Mean
		}
		term := f.Weight * (x - f.Mean) / f.Std
		z += term
		factors = append(factors, alert.Factor{Name: f.Name, Impact: term})
	}

	return &alert.Assessment{
		Risk:       1 / (1 + math.Exp(-z)),
		Factors:    factors,
		ComputedAt: time.Now(),
	}
}
