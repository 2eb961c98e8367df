// Package logic contains the pure decision logic of a sensor loop: threshold
// classification with hysteresis, input debouncing and bargraph levels.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time values carried in the inputs.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is the classification of a sample against a ThresholdConfig.
type Verdict string

const (
	// VerdictUnknown is the zero value, used before the first classification.
	VerdictUnknown Verdict = ""
	VerdictBelow   Verdict = "BELOW"
	VerdictNormal  Verdict = "NORMAL"
	VerdictAbove   Verdict = "ABOVE"
)

// Unit is the physical unit of a Reading.
type Unit string

const (
	UnitRaw         Unit = "raw"
	UnitCentimeters Unit = "cm"
	UnitPercent     Unit = "%"
	UnitCelsius     Unit = "C"
	UnitMillivolts  Unit = "mV"
	UnitMillibar    Unit = "mbar"
)

// ParseUnit converts a configuration string into a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "raw":
		return UnitRaw, nil
	case "cm", "centimeters":
		return UnitCentimeters, nil
	case "%", "percent":
		return UnitPercent, nil
	case "c", "celsius":
		return UnitCelsius, nil
	case "mv", "millivolts":
		return UnitMillivolts, nil
	case "mbar", "millibar":
		return UnitMillibar, nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// Reading is a single sensor sample. It is immutable once produced and is
// owned by the cycle that created it.
type Reading struct {
	Value float64
	Unit  Unit
	// Time carries the wall clock and the monotonic clock reading of the sample.
	Time time.Time
}

// Event represents a verdict transition to be published.
type Event struct {
	Timestamp time.Time
	Loop      string
	From      Verdict
	To        Verdict
	Value     float64
	Unit      Unit
	// Actuator is the output level applied for the new verdict.
	Actuator bool
}

// Edge selects which confirmed transitions of a digital input are acted on.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// Matches reports whether a confirmed edge of kind got is selected by e.
func (e Edge) Matches(got Edge) bool {
	if got == EdgeNone || e == EdgeNone {
		return false
	}
	return e == EdgeBoth || e == got
}

// ParseEdge converts a configuration string into an Edge.
func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rising":
		return EdgeRising, nil
	case "falling":
		return EdgeFalling, nil
	case "both":
		return EdgeBoth, nil
	case "none":
		return EdgeNone, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge %q", s)
}
