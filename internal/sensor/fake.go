package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// Step is one scripted outcome of a FakeSensor read.
type Step struct {
	Value float64
	Err   error
}

// FakeSensor returns scripted readings. It doubles as the "fake" sensor
// type for running a loop without hardware.
type FakeSensor struct {
	mu    sync.Mutex
	unit  logic.Unit
	steps []Step
	index int
	reads int

	// Cycle restarts the script after the last step instead of repeating it.
	Cycle bool

	// Now is the clock stamped on readings. Defaults to time.Now.
	Now func() time.Time
}

// NewFakeSensor creates a FakeSensor returning values in order.
func NewFakeSensor(unit logic.Unit, values ...float64) *FakeSensor {
	steps := make([]Step, len(values))
	for i, v := range values {
		steps[i] = Step{Value: v}
	}
	return NewScriptedSensor(unit, steps...)
}

// NewScriptedSensor creates a FakeSensor that can also fail on chosen reads.
func NewScriptedSensor(unit logic.Unit, steps ...Step) *FakeSensor {
	return &FakeSensor{unit: unit, steps: steps, Now: time.Now}
}

// Read returns the next scripted step.
// If steps are exhausted, returns the last step repeatedly (or restarts when Cycle is set).
func (f *FakeSensor) Read(ctx context.Context) (logic.Reading, error) {
	if err := ctx.Err(); err != nil {
		return logic.Reading{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if len(f.steps) == 0 {
		return logic.Reading{}, ErrNoData
	}

	step := f.steps[f.index]
	switch {
	case f.index < len(f.steps)-1:
		f.index++
	case f.Cycle:
		f.index = 0
	}

	if step.Err != nil {
		return logic.Reading{}, step.Err
	}
	return logic.Reading{Value: step.Value, Unit: f.unit, Time: f.Now()}, nil
}

// Reads returns the number of Read calls.
func (f *FakeSensor) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
