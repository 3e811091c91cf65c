package evaluation

import (
	"fmt"
	"strconv"
)

// Threshold selects the simulator's thresholding model.
type Threshold string

const (
	ThresholdHard Threshold = "hard"
	ThresholdSoft Threshold = "soft"
)

// XPMMode selects the cross-phase-modulation model.
type XPMMode string

const (
	XPMLinear  XPMMode = "linear"
	XPMPhysics XPMMode = "physics"
)

// Params is one cascade configuration. Values are fixed at construction;
// the service works on a sanitized copy and never mutates the caller's.
type Params struct {
	Threshold Threshold `json:"threshold"`
	Beta      float64   `json:"beta"`
	XPMMode   XPMMode   `json:"xpm_mode"`

	N2    *float64 `json:"n2"`
	AEff  *float64 `json:"a_eff"`
	NEff  *float64 `json:"n_eff"`
	GGeom *float64 `json:"g_geom"`

	// Extra carries caller-supplied flags; only sanitized entries reach the
	// subprocess or the cache identity.
	Extra []string `json:"extra,omitempty"`
}

// DefaultParams mirrors the simulator CLI defaults.
func DefaultParams() Params {
	n2 := 1e-17
	return Params{
		Threshold: ThresholdSoft,
		Beta:      30.0,
		XPMMode:   XPMPhysics,
		N2:        &n2,
	}
}

// Validate enforces the enums and the positive-beta invariant.
func (p Params) Validate() error {
	switch p.Threshold {
	case ThresholdHard, ThresholdSoft:
	default:
		return fmt.Errorf("%w: threshold must be hard or soft, got %q", ErrInvalidArgument, p.Threshold)
	}
	switch p.XPMMode {
	case XPMLinear, XPMPhysics:
	default:
		return fmt.Errorf("%w: xpm_mode must be linear or physics, got %q", ErrInvalidArgument, p.XPMMode)
	}
	if p.Beta <= 0 {
		return fmt.Errorf("%w: beta must be positive, got %v", ErrInvalidArgument, p.Beta)
	}
	return nil
}

// CLIArgs builds the cascade subcommand argument list. Extra is appended
// verbatim: the caller passes a sanitized copy.
func (p Params) CLIArgs() []string {
	args := []string{
		"cascade",
		"--threshold", string(p.Threshold),
		"--beta", formatFloat(p.Beta),
		"--xpm-mode", string(p.XPMMode),
	}
	if p.N2 != nil {
		args = append(args, "--n2", formatFloat(*p.N2))
	}
	if p.AEff != nil {
		args = append(args, "--a-eff", formatFloat(*p.AEff))
	}
	if p.NEff != nil {
		args = append(args, "--n-eff", formatFloat(*p.NEff))
	}
	if p.GGeom != nil {
		args = append(args, "--g-geom", formatFloat(*p.GGeom))
	}
	args = append(args, p.Extra...)
	return args
}

// CacheIdentity is the subset of fields that participates in cache identity.
// Optional floats appear as null when unset so that "unset" and "zero" are
// distinct configurations.
func (p Params) CacheIdentity() map[string]any {
	return map[string]any{
		"threshold": string(p.Threshold),
		"beta":      p.Beta,
		"xpm_mode":  string(p.XPMMode),
		"n2":        optional(p.N2),
		"a_eff":     optional(p.AEff),
		"n_eff":     optional(p.NEff),
		"g_geom":    optional(p.GGeom),
		"extra":     p.Extra,
	}
}

// TrackingParams flattens the configuration for the experiment tracker.
func (p Params) TrackingParams() map[string]any {
	out := map[string]any{
		"threshold": string(p.Threshold),
		"beta":      p.Beta,
		"xpm_mode":  string(p.XPMMode),
	}
	if p.N2 != nil {
		out["n2"] = *p.N2
	}
	if p.AEff != nil {
		out["a_eff"] = *p.AEff
	}
	if p.NEff != nil {
		out["n_eff"] = *p.NEff
	}
	if p.GGeom != nil {
		out["g_geom"] = *p.GGeom
	}
	return out
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
