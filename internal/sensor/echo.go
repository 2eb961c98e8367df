package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
)

// DefaultEchoTimeout bounds one ultrasonic measurement. The HC-SR04 gives
// up at about 38ms when nothing reflects.
const DefaultEchoTimeout = 50 * time.Millisecond

// usPerCentimeter is the round-trip time of sound over one centimeter.
const usPerCentimeter = 58

// edgeEvent is an echo line transition with its kernel timestamp.
type edgeEvent struct {
	rising bool
	ts     time.Duration
}

// measureEcho waits for a rising then a falling edge and returns the pulse width.
func measureEcho(ctx context.Context, events <-chan edgeEvent, timeout time.Duration) (time.Duration, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var rise time.Duration
	seenRise := false
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			if !seenRise {
				return 0, fmt.Errorf("%w: no echo", ErrTimeout)
			}
			return 0, fmt.Errorf("%w: echo did not end", ErrTimeout)
		case evt := <-events:
			switch {
			case evt.rising:
				rise = evt.ts
				seenRise = true
			case seenRise:
				if evt.ts < rise {
					return 0, fmt.Errorf("%w: echo timestamps out of order", ErrNoData)
				}
				return evt.ts - rise, nil
			}
		}
	}
}

// echoCentimeters converts an echo pulse width into a distance with one
// decimal. The whole tenths are exact in float32; the final division is done
// in float64 so 201 tenths reads as 20.1, not 20.100000381.
func echoCentimeters(pulse time.Duration) float64 {
	us := float32(pulse.Nanoseconds()) / 1000
	tenths := math32.Round(us / usPerCentimeter * 10)
	return float64(tenths) / 10
}

// drainEvents discards edges left over from a previous measurement.
func drainEvents(events <-chan edgeEvent) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
