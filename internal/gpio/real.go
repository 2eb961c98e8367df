//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is an opened GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Name returns the chip name.
func (c *Chip) Name() string {
	return c.chip.Name
}

// Close releases the chip. Lines requested from it must be closed separately.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealPin reads an input line from actual hardware.
type RealPin struct {
	line   *gpiocdev.Line
	offset int
}

// Input requests offset as an input. Active-low lines (buttons to ground)
// get a pull-up; others get a pull-down to match Pi boot defaults.
func (c *Chip) Input(offset int, activeLow bool) (*RealPin, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if activeLow {
		opts = []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow}
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	return &RealPin{line: line, offset: offset}, nil
}

// Get returns the logical level of the line.
func (p *RealPin) Get() (bool, error) {
	v, err := p.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", p.offset, err)
	}
	return v == 1, nil
}

// Close releases the line.
func (p *RealPin) Close() error {
	if err := p.line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", p.offset, err)
	}
	return nil
}

// RealOutput drives an output line on actual hardware.
type RealOutput struct {
	line   *gpiocdev.Line
	offset int
}

// Output requests offset as an output driven to initial.
func (c *Chip) Output(offset int, activeLow, initial bool) (*RealOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(boolToInt(initial))}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return &RealOutput{line: line, offset: offset}, nil
}

// SetLevel drives the logical level of the line.
func (o *RealOutput) SetLevel(level bool) error {
	if err := o.line.SetValue(boolToInt(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", o.offset, err)
	}
	return nil
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so a relay or valve is not left energised.
func (o *RealOutput) Close() error {
	var errs []error
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.offset, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.offset, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
