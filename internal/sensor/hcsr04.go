//go:build linux

package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// HCSR04 is an ultrasonic range finder on two GPIO lines.
type HCSR04 struct {
	trig    *gpiocdev.Line
	echo    *gpiocdev.Line
	events  chan edgeEvent
	timeout time.Duration
	scale   Scale
}

// OpenHCSR04 requests the trigger and echo lines on chip.
func OpenHCSR04(chip string, trigger, echo int, timeout time.Duration, scale Scale) (*HCSR04, error) {
	if timeout <= 0 {
		timeout = DefaultEchoTimeout
	}
	s := &HCSR04{
		events:  make(chan edgeEvent, 4),
		timeout: timeout,
		scale:   scale,
	}

	trig, err := gpiocdev.RequestLine(chip, trigger, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request trigger line %d: %w", trigger, err)
	}
	s.trig = trig

	s.echo, err = gpiocdev.RequestLine(chip, echo,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(s.handle))
	if err != nil {
		trig.Close()
		return nil, fmt.Errorf("request echo line %d: %w", echo, err)
	}
	return s, nil
}

// handle runs on the gpiocdev event goroutine and must not block.
func (s *HCSR04) handle(evt gpiocdev.LineEvent) {
	e := edgeEvent{rising: evt.Type == gpiocdev.LineEventRisingEdge, ts: evt.Timestamp}
	select {
	case s.events <- e:
	default:
	}
}

// Read triggers one measurement and returns the distance in centimeters.
func (s *HCSR04) Read(ctx context.Context) (logic.Reading, error) {
	drainEvents(s.events)

	if err := s.trig.SetValue(1); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: trigger: %v", ErrUnavailable, err)
	}
	time.Sleep(10 * time.Microsecond)
	if err := s.trig.SetValue(0); err != nil {
		return logic.Reading{}, fmt.Errorf("%w: trigger: %v", ErrUnavailable, err)
	}

	pulse, err := measureEcho(ctx, s.events, s.timeout)
	if err != nil {
		return logic.Reading{}, err
	}
	return logic.Reading{
		Value: s.scale.Apply(echoCentimeters(pulse)),
		Unit:  logic.UnitCentimeters,
		Time:  time.Now(),
	}, nil
}

// Close releases both lines.
func (s *HCSR04) Close() error {
	var errs []error
	if err := s.echo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close echo: %w", err))
	}
	if err := s.trig.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close trigger: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
