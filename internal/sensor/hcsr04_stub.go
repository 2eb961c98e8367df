//go:build !linux

package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// HCSR04 is a stub for non-Linux platforms.
type HCSR04 struct{}

// OpenHCSR04 returns an error on non-Linux platforms.
func OpenHCSR04(chip string, trigger, echo int, timeout time.Duration, scale Scale) (*HCSR04, error) {
	return nil, errors.New("HC-SR04 is only supported on Linux")
}

// Read returns ErrUnavailable on non-Linux platforms.
func (s *HCSR04) Read(ctx context.Context) (logic.Reading, error) {
	return logic.Reading{}, ErrUnavailable
}

// Close is a no-op on non-Linux platforms.
func (s *HCSR04) Close() error {
	return nil
}
