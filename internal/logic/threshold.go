package logic

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfigInvalid is returned for threshold configurations that violate
// Low < High or 0 <= Hysteresis < High-Low.
var ErrConfigInvalid = errors.New("invalid threshold config")

// ThresholdConfig holds the two-sided bounds of a loop.
type ThresholdConfig struct {
	Low        float64 `yaml:"low"`
	High       float64 `yaml:"high"`
	Hysteresis float64 `yaml:"hysteresis"`
}

// Validate checks the invariants of the configuration. All values must be finite.
func (c ThresholdConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"low", c.Low}, {"high", c.High}, {"hysteresis", c.Hysteresis}} {
		if math.IsInf(f.v, 0) || math.IsNaN(f.v) {
			return fmt.Errorf("%w: %s (%v) must be finite", ErrConfigInvalid, f.name, f.v)
		}
	}
	if !(c.Low < c.High) {
		return fmt.Errorf("%w: low (%v) must be below high (%v)", ErrConfigInvalid, c.Low, c.High)
	}
	if !(c.Hysteresis >= 0) {
		return fmt.Errorf("%w: hysteresis (%v) must not be negative", ErrConfigInvalid, c.Hysteresis)
	}
	if !(c.Hysteresis < c.High-c.Low) {
		return fmt.Errorf("%w: hysteresis (%v) must be smaller than high-low (%v)", ErrConfigInvalid, c.Hysteresis, c.High-c.Low)
	}
	return nil
}

// Evaluate classifies value against cfg, taking the previous verdict into
// account so that a value hovering around a bound does not flap.
//
// From NORMAL (or no previous verdict) the value becomes BELOW when
// value < Low and ABOVE when value > High. From BELOW it returns to NORMAL
// only once value >= Low+Hysteresis; from ABOVE only once
// value <= High-Hysteresis. A jump straight across the band is classified
// directly. Values are never clamped.
func Evaluate(value float64, cfg ThresholdConfig, prev Verdict) Verdict {
	switch prev {
	case VerdictBelow:
		switch {
		case value > cfg.High:
			return VerdictAbove
		case value >= cfg.Low+cfg.Hysteresis:
			return VerdictNormal
		}
		return VerdictBelow
	case VerdictAbove:
		switch {
		case value < cfg.Low:
			return VerdictBelow
		case value <= cfg.High-cfg.Hysteresis:
			return VerdictNormal
		}
		return VerdictAbove
	}

	switch {
	case value < cfg.Low:
		return VerdictBelow
	case value > cfg.High:
		return VerdictAbove
	}
	return VerdictNormal
}
