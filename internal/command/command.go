// Package command decodes the text commands a loop accepts over a serial
// line or MQTT: single-letter toggles and numeric threshold updates.
package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-loop/internal/logic"
)

var (
	// ErrUnknown is returned for frames whose flag names no command.
	ErrUnknown = errors.New("unknown command")
	// ErrMalformed is returned for empty frames and bad arguments.
	ErrMalformed = errors.New("malformed command")
)

// Target is the loop a command acts on.
type Target interface {
	ToggleEnabled() bool
	ToggleHold() bool
	ModifyThresholds(func(logic.ThresholdConfig) logic.ThresholdConfig) error
}

// Command is one entry of the command table.
type Command struct {
	Flag byte
	// Numeric commands take a decimal argument; the others take none.
	Numeric     bool
	Run         func(t Target, value float64) error
	Description string
}

var (
	ToggleEnableCommand = &Command{
		Flag: 'H',
		Run: func(t Target, _ float64) error {
			t.ToggleEnabled()
			return nil
		},
		Description: "Toggle sampling on or off.",
	}
	ToggleHoldCommand = &Command{
		Flag: 'O',
		Run: func(t Target, _ float64) error {
			t.ToggleHold()
			return nil
		},
		Description: "Toggle hold: freeze display and bargraph output.",
	}
	SetLowCommand = &Command{
		Flag:    'L',
		Numeric: true,
		Run: func(t Target, v float64) error {
			return t.ModifyThresholds(func(c logic.ThresholdConfig) logic.ThresholdConfig {
				c.Low = v
				return c
			})
		},
		Description: "Set the low threshold. Input: decimal number.",
	}
	SetHighCommand = &Command{
		Flag:    'U',
		Numeric: true,
		Run: func(t Target, v float64) error {
			return t.ModifyThresholds(func(c logic.ThresholdConfig) logic.ThresholdConfig {
				c.High = v
				return c
			})
		},
		Description: "Set the high threshold. Input: decimal number.",
	}
	SetHysteresisCommand = &Command{
		Flag:    'Y',
		Numeric: true,
		Run: func(t Target, v float64) error {
			return t.ModifyThresholds(func(c logic.ThresholdConfig) logic.ThresholdConfig {
				c.Hysteresis = v
				return c
			})
		},
		Description: "Set the hysteresis band. Input: decimal number.",
	}
)

// Commands is the command table.
var Commands = []*Command{
	ToggleEnableCommand,
	ToggleHoldCommand,
	SetLowCommand,
	SetHighCommand,
	SetHysteresisCommand,
}

var byFlag = func() map[byte]*Command {
	m := make(map[byte]*Command, len(Commands))
	for _, c := range Commands {
		m[c.Flag] = c
	}
	return m
}()

// Decode parses one frame such as "H", "L12.5" or "U30\r\n".
func Decode(frame []byte) (*Command, float64, error) {
	s := strings.TrimSpace(string(frame))
	if s == "" {
		return nil, 0, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	cmd, ok := byFlag[s[0]]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknown, s[0])
	}

	arg := s[1:]
	if !cmd.Numeric {
		if arg != "" {
			return nil, 0, fmt.Errorf("%w: %q takes no argument", ErrMalformed, cmd.Flag)
		}
		return cmd, 0, nil
	}

	if arg == "" {
		return nil, 0, fmt.Errorf("%w: %q needs a value", ErrMalformed, cmd.Flag)
	}
	if !isDecimal(arg) {
		return nil, 0, fmt.Errorf("%w: %q is not a decimal number", ErrMalformed, arg)
	}
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %q: %v", ErrMalformed, arg, err)
	}
	return cmd, v, nil
}

// isDecimal accepts an optional leading '-', then digits with at most one
// '.'. Exponents, "Inf" and "NaN" are rejected.
func isDecimal(s string) bool {
	s = strings.TrimPrefix(s, "-")
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// Handle decodes frame and runs it against t.
func Handle(t Target, frame []byte) error {
	cmd, v, err := Decode(frame)
	if err != nil {
		return err
	}
	if err := cmd.Run(t, v); err != nil {
		return fmt.Errorf("command %q: %w", cmd.Flag, err)
	}
	return nil
}

// Serve reads newline-terminated frames from r and handles each one until
// r is exhausted or ctx is cancelled. When r is an io.Closer it is closed
// on cancellation to unblock the pending read. Bad frames are logged.
func Serve(ctx context.Context, name string, r io.Reader, t Target) error {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := Handle(t, line); err != nil {
			log.Printf("command %s: %v", name, err)
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("command %s: read: %w", name, err)
	}
	return nil
}

// Help returns one line per command.
func Help() string {
	var b strings.Builder
	for _, c := range Commands {
		arg := ""
		if c.Numeric {
			arg = "<n>"
		}
		fmt.Fprintf(&b, "%c%-4s %s\n", c.Flag, arg, c.Description)
	}
	return b.String()
}
