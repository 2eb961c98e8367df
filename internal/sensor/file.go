package sensor

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// FileSensor reads a single number from a sysfs attribute such as an IIO
// ADC channel (in_voltage0_raw) or a 1-Wire thermometer (temperature).
type FileSensor struct {
	path  string
	unit  logic.Unit
	scale Scale
}

// NewFileSensor creates a FileSensor for path.
func NewFileSensor(path string, unit logic.Unit, scale Scale) *FileSensor {
	return &FileSensor{path: path, unit: unit, scale: scale}
}

// Read reads and scales the attribute.
func (s *FileSensor) Read(ctx context.Context) (logic.Reading, error) {
	if err := ctx.Err(); err != nil {
		return logic.Reading{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return logic.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return logic.Reading{}, ErrNoData
	}
	raw, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return logic.Reading{}, fmt.Errorf("%w: parse %s: %v", ErrUnavailable, s.path, err)
	}
	return logic.Reading{Value: s.scale.Apply(raw), Unit: s.unit, Time: time.Now()}, nil
}
