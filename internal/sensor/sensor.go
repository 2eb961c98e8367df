// Package sensor provides the sample sources of a sensor loop.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// ErrUnavailable is the root of every failed read. A failed read skips one
// cycle; it is never fatal.
var ErrUnavailable = errors.New("sensor unavailable")

var (
	// ErrNoData means the device has not produced a sample yet.
	ErrNoData = fmt.Errorf("%w: no data", ErrUnavailable)
	// ErrTimeout means the device did not answer in time or its last sample is stale.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrUnavailable)
)

// Sensor produces one Reading per call.
type Sensor interface {
	Read(ctx context.Context) (logic.Reading, error)
}

// Scale converts a raw device value into engineering units:
// value = raw*Factor + Offset, rounded to Decimals places when Decimals > 0.
// A zero Factor is treated as 1. The identity scale returns raw untouched.
type Scale struct {
	Factor   float64 `yaml:"factor"`
	Offset   float64 `yaml:"offset"`
	Decimals int     `yaml:"decimals"`
}

// Identity reports whether Apply leaves every value unchanged.
func (s Scale) Identity() bool {
	return (s.Factor == 0 || s.Factor == 1) && s.Offset == 0 && s.Decimals <= 0
}

// Apply converts raw.
func (s Scale) Apply(raw float64) float64 {
	if s.Identity() {
		return raw
	}
	f := s.Factor
	if f == 0 {
		f = 1
	}
	v := raw*f + s.Offset
	if s.Decimals > 0 {
		p := math.Pow10(s.Decimals)
		v = math.Round(v*p) / p
	}
	return v
}
