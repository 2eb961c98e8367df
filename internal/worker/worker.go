// Package worker runs the sample-evaluate-actuate cycle of one sensor loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/sensor-loop/internal/actuator"
	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/sensor"
	"github.com/sweeney/sensor-loop/internal/telemetry"
)

// ErrCancelled is returned by Run when its context is cancelled. It marks a
// normal shutdown, not a failure.
var ErrCancelled = errors.New("worker: cancellation requested")

// EventBuffer is the capacity of the transition event channel. Events that
// do not fit are dropped and counted.
const EventBuffer = 16

// State is the position of the worker in its cycle.
type State int32

const (
	StateWaiting State = iota
	StateSampling
	StateEvaluating
	StateActuating
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateSampling:
		return "SAMPLING"
	case StateEvaluating:
		return "EVALUATING"
	case StateActuating:
		return "ACTUATING"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config wires a worker to its collaborators.
type Config struct {
	Name       string
	Sensor     sensor.Sensor
	Thresholds logic.ThresholdConfig
	Policy     actuator.Policy
	Gate       *actuator.Gate

	// Bargraph and Display are optional outputs refreshed every cycle.
	Bargraph *actuator.Bargraph
	Display  telemetry.Display

	// Wake delivers one value per sampling period.
	Wake <-chan struct{}
	// WaitTimeout, if positive, logs a warning each time no wakeup arrived
	// for that long. The worker keeps waiting.
	WaitTimeout time.Duration

	// Enabled gates sampling; nil means a new flag that starts on.
	Enabled *logic.Flag
	// Hold freezes the bargraph and display; nil means a new flag that starts off.
	Hold *logic.Flag

	// OnCycle, if set, is called with a snapshot after every wakeup.
	OnCycle func(Stats)
}

// Stats is a point-in-time view of a worker.
type Stats struct {
	Name        string
	State       State
	Verdict     logic.Verdict
	Last        logic.Reading
	HasReading  bool
	Thresholds  logic.ThresholdConfig
	Actuator    actuator.State
	Enabled     bool
	Hold        bool
	Cycles      uint64
	Skipped     uint64
	Idle        uint64
	Transitions uint64
	Timeouts    uint64
	Dropped     uint64
}

// Worker owns one loop: a sensor, its thresholds and its gate.
type Worker struct {
	cfg    Config
	state  atomic.Int32
	events chan logic.Event

	// pending holds the latest accepted thresholds; Run adopts it between cycles.
	pending atomic.Pointer[logic.ThresholdConfig]

	mu    sync.RWMutex
	stats Stats

	// owned by the Run goroutine
	thresholds logic.ThresholdConfig
	verdict    logic.Verdict
}

// New validates cfg and returns a worker in the WAITING state.
func New(cfg Config) (*Worker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: loop name is required", logic.ErrConfigInvalid)
	}
	if cfg.Sensor == nil {
		return nil, fmt.Errorf("%w: loop %s: sensor is required", logic.ErrConfigInvalid, cfg.Name)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("%w: loop %s: gate is required", logic.ErrConfigInvalid, cfg.Name)
	}
	if cfg.Wake == nil {
		return nil, fmt.Errorf("%w: loop %s: wake channel is required", logic.ErrConfigInvalid, cfg.Name)
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("loop %s: %w", cfg.Name, err)
	}
	if cfg.Enabled == nil {
		cfg.Enabled = logic.NewFlag(true)
	}
	if cfg.Hold == nil {
		cfg.Hold = logic.NewFlag(false)
	}

	w := &Worker{
		cfg:        cfg,
		events:     make(chan logic.Event, EventBuffer),
		thresholds: cfg.Thresholds,
	}
	th := cfg.Thresholds
	w.pending.Store(&th)
	w.stats = Stats{Name: cfg.Name, Thresholds: th, Actuator: cfg.Gate.State()}
	return w, nil
}

// Name returns the loop name.
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Events returns verdict transitions. The channel is closed when Run returns.
func (w *Worker) Events() <-chan logic.Event {
	return w.events
}

// State returns the current cycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// EnabledFlag returns the flag that gates sampling.
func (w *Worker) EnabledFlag() *logic.Flag {
	return w.cfg.Enabled
}

// HoldFlag returns the flag that freezes the outputs.
func (w *Worker) HoldFlag() *logic.Flag {
	return w.cfg.Hold
}

// ToggleEnabled flips the enabled flag and returns its new value.
func (w *Worker) ToggleEnabled() bool {
	v := w.cfg.Enabled.Toggle()
	log.Printf("loop %s: enabled=%v", w.cfg.Name, v)
	return v
}

// ToggleHold flips the hold flag and returns its new value.
func (w *Worker) ToggleHold() bool {
	v := w.cfg.Hold.Toggle()
	log.Printf("loop %s: hold=%v", w.cfg.Name, v)
	return v
}

// Thresholds returns the most recently accepted thresholds. They take effect
// at the start of the next cycle.
func (w *Worker) Thresholds() logic.ThresholdConfig {
	return *w.pending.Load()
}

// UpdateThresholds replaces the thresholds from the next cycle on.
func (w *Worker) UpdateThresholds(cfg logic.ThresholdConfig) error {
	return w.ModifyThresholds(func(logic.ThresholdConfig) logic.ThresholdConfig { return cfg })
}

// ModifyThresholds applies fn to the latest accepted thresholds. Invalid
// results are rejected and leave the thresholds unchanged. Safe for
// concurrent use.
func (w *Worker) ModifyThresholds(fn func(logic.ThresholdConfig) logic.ThresholdConfig) error {
	for {
		old := w.pending.Load()
		next := fn(*old)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("loop %s: %w", w.cfg.Name, err)
		}
		if w.pending.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// Run executes cycles until ctx is cancelled, then returns ErrCancelled.
// Run must be called once.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.events)
	defer func() {
		w.setState(StateStopped)
		w.report()
	}()

	for {
		w.setState(StateWaiting)
		w.wait(ctx)

		if ctx.Err() != nil {
			return ErrCancelled
		}
		w.applyPending()
		w.cycle(ctx)
		w.setState(StateWaiting)
		w.report()
	}
}

// wait blocks until a wakeup arrives or ctx is done.
func (w *Worker) wait(ctx context.Context) {
	for {
		var timeout <-chan time.Time
		var timer *time.Timer
		if w.cfg.WaitTimeout > 0 {
			timer = time.NewTimer(w.cfg.WaitTimeout)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
		case <-w.cfg.Wake:
		case <-timeout:
			log.Printf("loop %s: no wakeup for %v", w.cfg.Name, w.cfg.WaitTimeout)
			w.mu.Lock()
			w.stats.Timeouts++
			w.mu.Unlock()
			continue
		}
		if timer != nil {
			timer.Stop()
		}
		return
	}
}

func (w *Worker) applyPending() {
	next := *w.pending.Load()
	if next == w.thresholds {
		return
	}
	log.Printf("loop %s: thresholds low=%v high=%v hysteresis=%v",
		w.cfg.Name, next.Low, next.High, next.Hysteresis)
	w.thresholds = next
	w.mu.Lock()
	w.stats.Thresholds = next
	w.mu.Unlock()
}

func (w *Worker) cycle(ctx context.Context) {
	w.mu.Lock()
	w.stats.Cycles++
	w.mu.Unlock()

	if !w.cfg.Enabled.Load() {
		w.mu.Lock()
		w.stats.Idle++
		w.mu.Unlock()
		if w.cfg.Bargraph != nil {
			w.cfg.Bargraph.Clear()
		}
		return
	}

	w.setState(StateSampling)
	r, err := w.cfg.Sensor.Read(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("loop %s: read failed, skipping cycle: %v", w.cfg.Name, err)
		}
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		return
	}

	w.setState(StateEvaluating)
	prev := w.verdict
	next := logic.Evaluate(r.Value, w.thresholds, prev)

	w.setState(StateActuating)
	if next != prev {
		level := w.cfg.Policy.Level(next)
		w.cfg.Gate.Set(level)
		w.verdict = next
		log.Printf("loop %s: %s -> %s at %v %s, actuator=%v",
			w.cfg.Name, verdictString(prev), next, r.Value, r.Unit, level)
		w.emit(logic.Event{
			Timestamp: r.Time,
			Loop:      w.cfg.Name,
			From:      prev,
			To:        next,
			Value:     r.Value,
			Unit:      r.Unit,
			Actuator:  level,
		})
	}

	if w.cfg.Hold.Load() {
		if w.cfg.Bargraph != nil {
			w.cfg.Bargraph.Clear()
		}
	} else {
		if w.cfg.Bargraph != nil {
			w.cfg.Bargraph.Show(r.Value)
		}
		if w.cfg.Display != nil {
			w.cfg.Display.Show(r, next)
		}
	}

	w.mu.Lock()
	w.stats.Last = r
	w.stats.HasReading = true
	w.stats.Verdict = next
	if next != prev {
		w.stats.Transitions++
	}
	w.mu.Unlock()
}

func (w *Worker) emit(e logic.Event) {
	select {
	case w.events <- e:
	default:
		w.mu.Lock()
		w.stats.Dropped++
		w.mu.Unlock()
		log.Printf("loop %s: event channel full, dropping %s -> %s", w.cfg.Name, verdictString(e.From), e.To)
	}
}

func (w *Worker) report() {
	if w.cfg.OnCycle != nil {
		w.cfg.OnCycle(w.Stats())
	}
}

// Stats returns a snapshot of the worker.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	s := w.stats
	w.mu.RUnlock()
	s.State = w.State()
	s.Actuator = w.cfg.Gate.State()
	s.Enabled = w.cfg.Enabled.Load()
	s.Hold = w.cfg.Hold.Load()
	return s
}

func verdictString(v logic.Verdict) string {
	if v == logic.VerdictUnknown {
		return "UNKNOWN"
	}
	return string(v)
}
