//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Name is not implemented on non-Linux platforms.
func (c *Chip) Name() string { return "" }

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealPin is not available on non-Linux platforms.
type RealPin struct{}

// Input returns an error on non-Linux platforms.
func (c *Chip) Input(offset int, activeLow bool) (*RealPin, error) {
	return nil, errUnsupported
}

// Get is not implemented on non-Linux platforms.
func (p *RealPin) Get() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (p *RealPin) Close() error { return nil }

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// Output returns an error on non-Linux platforms.
func (c *Chip) Output(offset int, activeLow, initial bool) (*RealOutput, error) {
	return nil, errUnsupported
}

// SetLevel is not implemented on non-Linux platforms.
func (o *RealOutput) SetLevel(level bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error { return nil }
