package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// DefaultBaudRate is used when a serial port is configured without one.
const DefaultBaudRate = 115200

// LineConfig configures a LineSensor.
type LineConfig struct {
	Name string
	Unit logic.Unit
	// Channel selects ">channel:value" lines. Empty accepts any channel.
	Channel string
	Scale   Scale
	// StaleAfter, if positive, makes Read fail with ErrTimeout when the
	// latest sample is older than this.
	StaleAfter time.Duration
	// Now is the clock used for stamping and staleness. Defaults to time.Now.
	Now func() time.Time
}

// LineSensor reads newline-terminated samples from a stream, typically a
// microcontroller on a serial port. Accepted lines are a bare number
// ("512"), a number with a unit ("23 cm") or a telemetry line
// (">ADCValue:512"). Read returns the most recent sample.
type LineSensor struct {
	cfg    LineConfig
	rc     io.ReadCloser
	latest atomic.Pointer[logic.Reading]

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.Mutex
	readErr   error
}

// OpenSerial opens a serial port and starts reading samples from it.
func OpenSerial(port string, baud int, cfg LineConfig) (*LineSensor, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return NewLineSensor(p, cfg), nil
}

// NewLineSensor starts reading samples from rc. The sensor owns rc.
func NewLineSensor(rc io.ReadCloser, cfg LineConfig) *LineSensor {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &LineSensor{cfg: cfg, rc: rc, done: make(chan struct{})}
	go s.readLines()
	return s
}

func (s *LineSensor) readLines() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.rc)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		value, ok, err := parseLine(line, s.cfg.Channel)
		if err != nil {
			log.Printf("sensor %s: failed to parse line %q: %v", s.cfg.Name, line, err)
			continue
		}
		if !ok {
			continue
		}

		r := logic.Reading{Value: s.cfg.Scale.Apply(value), Unit: s.cfg.Unit, Time: s.cfg.Now()}
		s.latest.Store(&r)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
	log.Printf("sensor %s: stream ended: %v", s.cfg.Name, err)
}

// parseLine extracts the numeric value of a line. ok is false for
// telemetry lines of another channel.
func parseLine(line, channel string) (value float64, ok bool, err error) {
	if strings.HasPrefix(line, ">") {
		name, raw, found := strings.Cut(line[1:], ":")
		if !found {
			return 0, false, fmt.Errorf("missing ':' in telemetry line")
		}
		if channel != "" && strings.TrimSpace(name) != channel {
			return 0, false, nil
		}
		line = raw
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid value: %w", err)
	}
	return v, true, nil
}

// Read returns the latest sample.
func (s *LineSensor) Read(ctx context.Context) (logic.Reading, error) {
	if err := ctx.Err(); err != nil {
		return logic.Reading{}, err
	}

	r := s.latest.Load()
	if r == nil {
		s.mu.Lock()
		readErr := s.readErr
		s.mu.Unlock()
		if readErr != nil {
			return logic.Reading{}, fmt.Errorf("%w: %v", ErrUnavailable, readErr)
		}
		return logic.Reading{}, ErrNoData
	}

	if s.cfg.StaleAfter > 0 {
		if age := s.cfg.Now().Sub(r.Time); age > s.cfg.StaleAfter {
			return logic.Reading{}, fmt.Errorf("%w: last sample %v old", ErrTimeout, age.Truncate(time.Millisecond))
		}
	}
	return *r, nil
}

// Close closes the stream and waits for the reader goroutine to exit.
func (s *LineSensor) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rc.Close()
		<-s.done
	})
	return err
}
