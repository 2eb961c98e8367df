// Package gpio provides digital input and output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pin reads a single digital input line.
type Pin interface {
	// Get returns the logical level of the line.
	// Active-low lines are already inverted: pressed = true.
	Get() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives a single digital output line.
type Output interface {
	// SetLevel drives the logical level of the line.
	SetLevel(level bool) error

	// Close returns the line to a safe input state and releases it.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"
