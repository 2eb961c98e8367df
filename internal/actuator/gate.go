// Package actuator drives the digital outputs of a sensor loop: the
// threshold-controlled Gate and an optional LED Bargraph.
package actuator

import (
	"log"
	"sync"

	"github.com/sweeney/sensor-loop/internal/gpio"
	"github.com/sweeney/sensor-loop/internal/logic"
)

// State is the last level commanded on an output.
type State struct {
	Pin   string
	Level bool
}

// Gate is a write-through wrapper around a single output line.
// Setting the level it already holds does not touch the hardware.
type Gate struct {
	mu    sync.Mutex
	out   gpio.Output
	state State
}

// NewGate wraps out and drives it to initial.
func NewGate(pin string, out gpio.Output, initial bool) *Gate {
	g := &Gate{out: out, state: State{Pin: pin, Level: initial}}
	if err := out.SetLevel(initial); err != nil {
		log.Printf("actuator %s: set initial level: %v", pin, err)
	}
	return g
}

// Set drives the output to level. Write errors are logged; the commanded
// level is recorded either way so a retry only happens on the next change.
func (g *Gate) Set(level bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state.Level == level {
		return
	}
	g.state.Level = level
	if err := g.out.SetLevel(level); err != nil {
		log.Printf("actuator %s: set level %v: %v", g.state.Pin, level, err)
	}
}

// State returns the current commanded state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close releases the underlying output.
func (g *Gate) Close() error {
	return g.out.Close()
}

// Policy maps each verdict to an output level.
type Policy struct {
	Below  bool `yaml:"below"`
	Normal bool `yaml:"normal"`
	Above  bool `yaml:"above"`
}

// Level returns the output level for v. VerdictUnknown maps to the Normal level.
func (p Policy) Level(v logic.Verdict) bool {
	switch v {
	case logic.VerdictBelow:
		return p.Below
	case logic.VerdictAbove:
		return p.Above
	}
	return p.Normal
}
