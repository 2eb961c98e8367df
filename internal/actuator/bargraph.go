package actuator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// Bargraph lights one Gate per step the value has reached.
type Bargraph struct {
	mu    sync.Mutex
	steps []float64
	gates []*Gate
	level int
}

// NewBargraph pairs each ascending step with a gate. All gates start off.
func NewBargraph(steps []float64, gates []*Gate) (*Bargraph, error) {
	if len(steps) != len(gates) {
		return nil, fmt.Errorf("bargraph: %d steps for %d outputs", len(steps), len(gates))
	}
	if !logic.Ascending(steps) {
		return nil, errors.New("bargraph: steps must be strictly ascending")
	}
	for _, g := range gates {
		g.Set(false)
	}
	return &Bargraph{steps: steps, gates: gates}, nil
}

// Show lights the gates for value. Outputs are only written when the level changes.
func (b *Bargraph) Show(value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(logic.BarLevel(value, b.steps))
}

// Clear turns every gate off.
func (b *Bargraph) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(0)
}

// Level returns the number of lit gates.
func (b *Bargraph) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

func (b *Bargraph) setLocked(level int) {
	if level == b.level {
		return
	}
	for i, g := range b.gates {
		g.Set(i < level)
	}
	b.level = level
}

// Close releases every output, returning the first error.
func (b *Bargraph) Close() error {
	var firstErr error
	for _, g := range b.gates {
		if err := g.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
