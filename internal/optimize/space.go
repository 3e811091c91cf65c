// Package optimize drives a bounded derivative-free search over the
// simulator's continuous physics parameters, minimizing an objective built
// from the evaluation metrics.
package optimize

import (
	"fmt"

	"github.com/grapheneaffiliate/plogic-core/internal/evaluation"
)

// Dimension is one searchable parameter with box bounds.
type Dimension struct {
	Name string  `json:"name"`
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Space is an ordered list of dimensions. Point vectors map onto names by
// this ordering.
type Space []Dimension

// Parameter names a space may contain; each maps onto a cascade parameter.
var knownDimensions = map[string]bool{
	"n2":     true,
	"a_eff":  true,
	"n_eff":  true,
	"g_geom": true,
	"beta":   true,
}

// DefaultSpace is the standard search box over the physics parameters.
func DefaultSpace() Space {
	return Space{
		{Name: "n2", Low: 1e-18, High: 1e-16},
		{Name: "a_eff", Low: 0.1e-12, High: 2e-12},
		{Name: "n_eff", Low: 1.4, High: 3.5},
		{Name: "g_geom", Low: 0.5, High: 1.0},
		{Name: "beta", Low: 10.0, High: 100.0},
	}
}

// WithBounds overrides per-name [low, high] pairs. Names absent from the
// space are ignored, matching the upstream tool contract.
func (s Space) WithBounds(bounds map[string][]float64) (Space, error) {
	out := append(Space(nil), s...)
	for i, d := range out {
		b, ok := bounds[d.Name]
		if !ok {
			continue
		}
		if len(b) != 2 {
			return nil, fmt.Errorf("%w: bounds for %s must be [low, high], got %v", evaluation.ErrInvalidArgument, d.Name, b)
		}
		out[i].Low, out[i].High = b[0], b[1]
	}
	return out, nil
}

// Validate enforces the space invariants: at least one dimension, known
// unique names and low < high everywhere.
func (s Space) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: parameter space cannot be empty", evaluation.ErrInvalidArgument)
	}
	seen := make(map[string]bool, len(s))
	for _, d := range s {
		if !knownDimensions[d.Name] {
			return fmt.Errorf("%w: unknown dimension %q", evaluation.ErrInvalidArgument, d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate dimension %q", evaluation.ErrInvalidArgument, d.Name)
		}
		seen[d.Name] = true
		if d.Low >= d.High {
			return fmt.Errorf("%w: dimension %s requires low < high, got [%v, %v]", evaluation.ErrInvalidArgument, d.Name, d.Low, d.High)
		}
	}
	return nil
}

// Lower returns the lower bounds in space order.
func (s Space) Lower() []float64 {
	out := make([]float64, len(s))
	for i, d := range s {
		out[i] = d.Low
	}
	return out
}

// Upper returns the upper bounds in space order.
func (s Space) Upper() []float64 {
	out := make([]float64, len(s))
	for i, d := range s {
		out[i] = d.High
	}
	return out
}

// Named maps a point vector onto dimension names by space order.
func (s Space) Named(pt []float64) map[string]float64 {
	out := make(map[string]float64, len(s))
	for i, d := range s {
		if i < len(pt) {
			out[d.Name] = pt[i]
		}
	}
	return out
}
