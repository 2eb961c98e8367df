// Package telemetry renders loop samples for humans: the daemon log and
// serial plotters attached to a UART.
package telemetry

import (
	"io"
	"log"
	"strconv"
	"sync"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// Display shows one sample. Implementations must not block the caller for
// long and report their own errors.
type Display interface {
	Show(r logic.Reading, v logic.Verdict)
}

// LogDisplay writes each sample to the standard logger.
type LogDisplay struct {
	Name string
}

// Show logs the sample.
func (d LogDisplay) Show(r logic.Reading, v logic.Verdict) {
	log.Printf("loop %s: %s %s (%s)", d.Name, formatValue(r.Value), r.Unit, verdictString(v))
}

// LineDisplay writes teleplot style lines (">name:value\r\n") to a stream.
type LineDisplay struct {
	mu   sync.Mutex
	name string
	w    io.Writer
}

// NewLineDisplay writes lines for channel name to w.
func NewLineDisplay(name string, w io.Writer) *LineDisplay {
	return &LineDisplay{name: name, w: w}
}

// Show writes the sample.
func (d *LineDisplay) Show(r logic.Reading, v logic.Verdict) {
	line := FormatLine(d.name, r.Value)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := io.WriteString(d.w, line); err != nil {
		log.Printf("telemetry %s: write: %v", d.name, err)
	}
}

// FormatLine returns the serial telemetry line for value.
func FormatLine(name string, value float64) string {
	return ">" + name + ":" + formatValue(value) + "\r\n"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func verdictString(v logic.Verdict) string {
	if v == logic.VerdictUnknown {
		return "UNKNOWN"
	}
	return string(v)
}

// Multi fans a sample out to several displays.
type Multi []Display

// Show calls Show on every display.
func (m Multi) Show(r logic.Reading, v logic.Verdict) {
	for _, d := range m {
		d.Show(r, v)
	}
}

// Shown is one sample recorded by FakeDisplay.
type Shown struct {
	Reading logic.Reading
	Verdict logic.Verdict
}

// FakeDisplay records shown samples for test assertions.
type FakeDisplay struct {
	mu    sync.Mutex
	shown []Shown
}

// Show records the sample.
func (f *FakeDisplay) Show(r logic.Reading, v logic.Verdict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, Shown{Reading: r, Verdict: v})
}

// Shown returns a copy of the recorded samples.
func (f *FakeDisplay) Shown() []Shown {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Shown(nil), f.shown...)
}
