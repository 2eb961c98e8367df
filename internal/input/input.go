// Package input turns a bouncing push button into toggles of a shared flag.
package input

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/sensor-loop/internal/gpio"
	"github.com/sweeney/sensor-loop/internal/logic"
)

// DefaultInterval is the polling interval when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Config describes one debounced input.
type Config struct {
	Name     string
	Pin      gpio.Pin
	Interval time.Duration
	Window   int
	// Edge selects the confirmed edges that toggle Flag. Zero means EdgeRising.
	Edge logic.Edge
	// Flag is toggled once per confirmed edge selected by Edge.
	Flag *logic.Flag
	// OnEdge, if set, is called after the flag was toggled with the new flag value.
	OnEdge func(edge logic.Edge, flag bool)
}

// Input samples a pin, debounces it and toggles a flag on confirmed edges.
type Input struct {
	cfg Config
	deb *logic.Debouncer
}

// New validates cfg and takes an initial snapshot of the pin.
func New(cfg Config) (*Input, error) {
	if cfg.Pin == nil {
		return nil, errors.New("input: pin is required")
	}
	if cfg.Flag == nil {
		return nil, errors.New("input: flag is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Edge == logic.EdgeNone {
		cfg.Edge = logic.EdgeRising
	}

	initial, err := cfg.Pin.Get()
	if err != nil {
		return nil, fmt.Errorf("input %s: initial read: %w", cfg.Name, err)
	}
	return &Input{
		cfg: cfg,
		deb: logic.NewDebouncer(cfg.Window, initial),
	}, nil
}

// Name returns the configured name.
func (in *Input) Name() string {
	return in.cfg.Name
}

// Stable returns the debounced level.
func (in *Input) Stable() bool {
	return in.deb.Stable()
}

// Run polls the pin until ctx is cancelled. It always returns ctx.Err().
func (in *Input) Run(ctx context.Context) error {
	ticker := time.NewTicker(in.cfg.Interval)
	defer ticker.Stop()
	return in.runWith(ctx, ticker.C)
}

func (in *Input) runWith(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			in.sample()
		}
	}
}

func (in *Input) sample() {
	raw, err := in.cfg.Pin.Get()
	if err != nil {
		log.Printf("input %s: read error: %v", in.cfg.Name, err)
		return
	}

	edge := in.deb.Process(raw)
	if !in.cfg.Edge.Matches(edge) {
		return
	}

	v := in.cfg.Flag.Toggle()
	log.Printf("input %s: %s edge, flag now %v", in.cfg.Name, edge, v)
	if in.cfg.OnEdge != nil {
		in.cfg.OnEdge(edge, v)
	}
}
