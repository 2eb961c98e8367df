package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-loop/internal/actuator"
	"github.com/sweeney/sensor-loop/internal/command"
	"github.com/sweeney/sensor-loop/internal/config"
	"github.com/sweeney/sensor-loop/internal/gpio"
	"github.com/sweeney/sensor-loop/internal/input"
	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/mqtt"
	"github.com/sweeney/sensor-loop/internal/sampler"
	"github.com/sweeney/sensor-loop/internal/sensor"
	"github.com/sweeney/sensor-loop/internal/status"
	"github.com/sweeney/sensor-loop/internal/telemetry"
	"github.com/sweeney/sensor-loop/internal/worker"
)

// broker is the MQTT surface the daemon needs.
type broker interface {
	mqtt.Publisher
	mqtt.Subscriber
	mqtt.ConnectionStatus
}

// lines hands out GPIO lines, either from a chip or simulated.
type lines interface {
	Input(offset int, activeLow bool) (gpio.Pin, error)
	Output(offset int, activeLow, initial bool) (gpio.Output, error)
}

type chipLines struct {
	chip *gpio.Chip
}

func (c chipLines) Input(offset int, activeLow bool) (gpio.Pin, error) {
	p, err := c.chip.Input(offset, activeLow)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (c chipLines) Output(offset int, activeLow, initial bool) (gpio.Output, error) {
	o, err := c.chip.Output(offset, activeLow, initial)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// simLines backs every line with an in-memory fake. Inputs read low.
type simLines struct {
	mu      sync.Mutex
	pins    map[int]*gpio.FakePin
	outputs map[int]*gpio.FakeOutput
}

func newSimLines() *simLines {
	return &simLines{
		pins:    make(map[int]*gpio.FakePin),
		outputs: make(map[int]*gpio.FakeOutput),
	}
}

func (s *simLines) Input(offset int, activeLow bool) (gpio.Pin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := gpio.NewFakePin(false)
	s.pins[offset] = p
	return p, nil
}

func (s *simLines) Output(offset int, activeLow, initial bool) (gpio.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := gpio.NewFakeOutput()
	s.outputs[offset] = o
	return o, nil
}

func (s *simLines) output(offset int) *gpio.FakeOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[offset]
}

// openLines returns the GPIO source for cfg and a function releasing it.
func openLines(cfg *config.Config) (lines, func(), error) {
	if cfg.Simulate {
		log.Printf("gpio: simulated")
		return newSimLines(), func() {}, nil
	}
	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return nil, nil, fmt.Errorf("init gpio: %w", err)
	}
	return chipLines{chip: chip}, func() { chip.Close() }, nil
}

// ports opens each serial port once so a display and a command source can
// share it. It is the only owner of the ports it opened.
type ports struct {
	mu     sync.Mutex
	openFn func(sp *config.SerialPortConfig) (io.ReadWriteCloser, error)
	open   map[string]io.ReadWriteCloser
}

func newPorts(open func(sp *config.SerialPortConfig) (io.ReadWriteCloser, error)) *ports {
	return &ports{openFn: open, open: make(map[string]io.ReadWriteCloser)}
}

func openSerialPort(sp *config.SerialPortConfig) (io.ReadWriteCloser, error) {
	port, err := serial.Open(sp.Port, &serial.Mode{BaudRate: sp.Baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

func (p *ports) get(sp *config.SerialPortConfig) (io.ReadWriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if port, ok := p.open[sp.Port]; ok {
		return port, nil
	}
	port, err := p.openFn(sp)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", sp.Port, err)
	}
	p.open[sp.Port] = port
	return port, nil
}

// Close closes every open port once. Later calls are no-ops.
func (p *ports) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for name, port := range p.open {
		if err := port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close serial port %s: %w", name, err))
		}
		delete(p.open, name)
	}
	return errors.Join(errs...)
}

// newSensor builds the sample source of a loop. The returned closer may be nil.
func newSensor(lc config.LoopConfig, chip string, simulate bool) (sensor.Sensor, io.Closer, error) {
	sc := lc.Sensor
	unit, err := logic.ParseUnit(sc.Unit)
	if err != nil {
		return nil, nil, err
	}

	switch sc.Type {
	case config.SensorFake:
		s := sensor.NewFakeSensor(unit, sc.Values...)
		s.Cycle = sc.Cycle
		return s, nil, nil

	case config.SensorSerial:
		s, err := sensor.OpenSerial(sc.Port, sc.Baud, sensor.LineConfig{
			Name:       lc.Name,
			Unit:       unit,
			Channel:    sc.Channel,
			Scale:      sc.Scale,
			StaleAfter: sc.StaleAfter,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.SensorFile:
		return sensor.NewFileSensor(sc.Path, unit, sc.Scale), nil, nil

	case config.SensorHCSR04:
		if simulate {
			values := sc.Values
			if len(values) == 0 {
				th := lc.Thresholds
				values = []float64{th.Low - 1, (th.Low + th.High) / 2, th.High + 1}
			}
			s := sensor.NewFakeSensor(unit, values...)
			s.Cycle = true
			return s, nil, nil
		}
		s, err := sensor.OpenHCSR04(chip, sc.TriggerPin, sc.EchoPin, sc.Timeout, sc.Scale)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown sensor type %q", sc.Type)
}

// loop is one running sensor loop and the hardware it owns.
type loop struct {
	cfg      config.LoopConfig
	notifier *sampler.Notifier
	sampler  *sampler.Sampler
	worker   *worker.Worker
	inputs   []*input.Input
	commands io.Reader
	closers  []io.Closer
}

func pinName(offset int) string {
	return fmt.Sprintf("GPIO%d", offset)
}

func newLoop(cfg *config.Config, lc config.LoopConfig, gl lines, sp *ports, tracker *status.Tracker) (*loop, error) {
	l := &loop{cfg: lc}
	ok := false
	defer func() {
		if !ok {
			l.close()
		}
	}()

	sens, sensCloser, err := newSensor(lc, cfg.GPIOChip, cfg.Simulate)
	if err != nil {
		return nil, fmt.Errorf("loop %s: sensor: %w", lc.Name, err)
	}
	if sensCloser != nil {
		l.closers = append(l.closers, sensCloser)
	}

	out, err := gl.Output(lc.Actuator.Pin, lc.Actuator.ActiveLow, lc.Actuator.Initial)
	if err != nil {
		return nil, fmt.Errorf("loop %s: actuator: %w", lc.Name, err)
	}
	gate := actuator.NewGate(pinName(lc.Actuator.Pin), out, lc.Actuator.Initial)
	l.closers = append(l.closers, gate)

	var bar *actuator.Bargraph
	if b := lc.Bargraph; b != nil {
		gates := make([]*actuator.Gate, 0, len(b.Pins))
		for _, p := range b.Pins {
			o, err := gl.Output(p, b.ActiveLow, false)
			if err != nil {
				for _, g := range gates {
					g.Close()
				}
				return nil, fmt.Errorf("loop %s: bargraph: %w", lc.Name, err)
			}
			gates = append(gates, actuator.NewGate(pinName(p), o, false))
		}
		bar, err = actuator.NewBargraph(b.Steps, gates)
		if err != nil {
			for _, g := range gates {
				g.Close()
			}
			return nil, fmt.Errorf("loop %s: %w", lc.Name, err)
		}
		l.closers = append(l.closers, bar)
	}

	var displays telemetry.Multi
	if lc.Display.Log {
		displays = append(displays, telemetry.LogDisplay{Name: lc.Name})
	}
	if lc.Display.Serial != nil {
		port, err := sp.get(lc.Display.Serial)
		if err != nil {
			return nil, fmt.Errorf("loop %s: display: %w", lc.Name, err)
		}
		displays = append(displays, telemetry.NewLineDisplay(lc.Display.Channel, port))
	}
	if lc.Commands.Serial != nil {
		port, err := sp.get(lc.Commands.Serial)
		if err != nil {
			return nil, fmt.Errorf("loop %s: commands: %w", lc.Name, err)
		}
		// Serve must not close a port the display may share; closing the
		// port in ports.Close ends its pending read.
		l.commands = struct{ io.Reader }{port}
	}

	unit, _ := logic.ParseUnit(lc.Sensor.Unit)
	l.notifier = sampler.NewNotifier()
	l.sampler = sampler.New(l.notifier)
	smp := l.sampler

	policy := actuator.Policy{Below: true}
	if lc.Policy != nil {
		policy = *lc.Policy
	}
	wcfg := worker.Config{
		Name:        lc.Name,
		Sensor:      sens,
		Thresholds:  lc.Thresholds,
		Policy:      policy,
		Gate:        gate,
		Bargraph:    bar,
		Wake:        l.notifier.C(),
		WaitTimeout: lc.WaitTimeout,
		OnCycle: func(st worker.Stats) {
			tracker.UpdateLoop(loopState(st, unit, smp.Period(), smp.Missed()))
		},
	}
	if len(displays) > 0 {
		wcfg.Display = displays
	}
	w, err := worker.New(wcfg)
	if err != nil {
		return nil, err
	}
	l.worker = w
	tracker.UpdateLoop(loopState(w.Stats(), unit, lc.Period, 0))

	for _, in := range []struct {
		name string
		cfg  *config.InputConfig
		flag *logic.Flag
	}{
		{"enable", lc.Inputs.Enable, w.EnabledFlag()},
		{"hold", lc.Inputs.Hold, w.HoldFlag()},
	} {
		if in.cfg == nil {
			continue
		}
		pin, err := gl.Input(in.cfg.Pin, in.cfg.ActiveLow)
		if err != nil {
			return nil, fmt.Errorf("loop %s: %s input: %w", lc.Name, in.name, err)
		}
		l.closers = append(l.closers, pin)
		edge, _ := logic.ParseEdge(in.cfg.Edge)
		inp, err := input.New(input.Config{
			Name:     lc.Name + " " + in.name,
			Pin:      pin,
			Interval: in.cfg.Interval,
			Window:   in.cfg.Window,
			Edge:     edge,
			Flag:     in.flag,
		})
		if err != nil {
			return nil, err
		}
		l.inputs = append(l.inputs, inp)
	}

	ok = true
	return l, nil
}

// loopState converts worker stats for the status tracker.
func loopState(st worker.Stats, unit logic.Unit, period time.Duration, missed uint64) status.LoopState {
	ls := status.LoopState{
		Name:        st.Name,
		WorkerState: st.State.String(),
		Verdict:     st.Verdict,
		HasReading:  st.HasReading,
		Unit:        unit,
		Thresholds:  st.Thresholds,
		PeriodMs:    period.Milliseconds(),
		ActuatorPin: st.Actuator.Pin,
		Actuator:    st.Actuator.Level,
		Enabled:     st.Enabled,
		Hold:        st.Hold,
		Cycles:      st.Cycles,
		Skipped:     st.Skipped,
		Idle:        st.Idle,
		Transitions: st.Transitions,
		Timeouts:    st.Timeouts,
		Dropped:     st.Dropped,
		Missed:      missed,
	}
	if st.HasReading {
		ls.Value = st.Last.Value
		ls.Unit = st.Last.Unit
		ls.LastSample = st.Last.Time
	}
	return ls
}

// start arms the sampler and launches the goroutines of the loop on g. The
// serial command source runs on serving instead: it only returns once its
// port is closed, which happens after g has finished.
func (l *loop) start(ctx context.Context, g *errgroup.Group, serving *sync.WaitGroup, b broker) error {
	name := l.cfg.Name

	if l.cfg.Commands.MQTT {
		topic := mqtt.CommandTopic(name)
		err := b.Subscribe(topic, func(payload []byte) {
			if err := command.Handle(l.worker, payload); err != nil {
				log.Printf("command %s: %v", topic, err)
			}
		})
		if err != nil {
			return fmt.Errorf("loop %s: subscribe: %w", name, err)
		}
	}

	g.Go(func() error {
		if err := l.worker.Run(ctx); !errors.Is(err, worker.ErrCancelled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		for e := range l.worker.Events() {
			if err := b.Publish(e); err != nil {
				log.Printf("loop %s: publish error: %v", name, err)
			}
		}
		return nil
	})

	for _, in := range l.inputs {
		g.Go(func() error {
			if err := in.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if l.commands != nil {
		serving.Add(1)
		go func() {
			defer serving.Done()
			err := command.Serve(ctx, name, l.commands, l.worker)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("loop %s: command source stopped: %v", name, err)
			}
		}()
	}

	if err := l.sampler.Arm(l.cfg.Period); err != nil {
		return fmt.Errorf("loop %s: %w", name, err)
	}
	log.Printf("loop %s: started period=%v", name, l.cfg.Period)
	return nil
}

// stop disarms the sampler. Pending wakeups are dropped.
func (l *loop) stop() {
	if l.sampler != nil {
		l.sampler.Disarm()
	}
}

// close releases the hardware of the loop in reverse order of acquisition.
func (l *loop) close() {
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i].Close(); err != nil {
			log.Printf("loop %s: close: %v", l.cfg.Name, err)
		}
	}
	l.closers = nil
}

// daemon is the set of configured loops.
type daemon struct {
	loops   []*loop
	ports   *ports
	serving sync.WaitGroup
}

func newDaemon(cfg *config.Config, gl lines, tracker *status.Tracker) (*daemon, error) {
	return buildDaemon(cfg, gl, newPorts(openSerialPort), tracker)
}

func buildDaemon(cfg *config.Config, gl lines, sp *ports, tracker *status.Tracker) (*daemon, error) {
	d := &daemon{ports: sp}
	for _, lc := range cfg.Loops {
		l, err := newLoop(cfg, lc, gl, d.ports, tracker)
		if err != nil {
			d.close()
			return nil, err
		}
		d.loops = append(d.loops, l)
	}
	return d, nil
}

func (d *daemon) start(ctx context.Context, g *errgroup.Group, b broker) error {
	for _, l := range d.loops {
		if err := l.start(ctx, g, &d.serving, b); err != nil {
			return err
		}
	}
	return nil
}

// targets returns the command targets by loop name.
func (d *daemon) targets() map[string]command.Target {
	t := make(map[string]command.Target, len(d.loops))
	for _, l := range d.loops {
		t[l.cfg.Name] = l.worker
	}
	return t
}

func (d *daemon) stop() {
	for _, l := range d.loops {
		l.stop()
	}
}

// close releases the loops and then the shared serial ports, which ends
// the serial command sources. Call it after the workers have stopped.
func (d *daemon) close() {
	for _, l := range d.loops {
		l.close()
	}
	if err := d.ports.Close(); err != nil {
		log.Printf("daemon: %v", err)
	}
	d.serving.Wait()
}
