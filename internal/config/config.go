// Package config loads the YAML description of the daemon and its loops.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/sensor-loop/internal/actuator"
	"github.com/sweeney/sensor-loop/internal/gpio"
	"github.com/sweeney/sensor-loop/internal/logic"
	"github.com/sweeney/sensor-loop/internal/sensor"
)

// Sensor types.
const (
	SensorFake   = "fake"
	SensorSerial = "serial"
	SensorFile   = "file"
	SensorHCSR04 = "hcsr04"
)

const (
	DefaultPeriod   = time.Second
	DefaultClientID = "sensor-loop"
)

// Config represents the daemon configuration.
type Config struct {
	Broker    string        `yaml:"broker"` // empty disables MQTT
	ClientID  string        `yaml:"client_id"`
	HTTP      string        `yaml:"http"` // empty disables the status server
	Heartbeat time.Duration `yaml:"heartbeat"`
	GPIOChip  string        `yaml:"gpio_chip"`
	// Simulate replaces every GPIO line with an in-memory one.
	Simulate bool         `yaml:"simulate"`
	Loops    []LoopConfig `yaml:"loops,omitempty"`
}

// LoopConfig describes one sensor loop.
type LoopConfig struct {
	Name        string                `yaml:"name"`
	Period      time.Duration         `yaml:"period"`
	WaitTimeout time.Duration         `yaml:"wait_timeout"`
	Sensor      SensorConfig          `yaml:"sensor"`
	Thresholds  logic.ThresholdConfig `yaml:"thresholds"`
	Actuator    OutputConfig          `yaml:"actuator"`
	Policy      *actuator.Policy      `yaml:"policy"`
	Bargraph    *BargraphConfig       `yaml:"bargraph"`
	Inputs      InputsConfig          `yaml:"inputs"`
	Display     DisplayConfig         `yaml:"display"`
	Commands    CommandsConfig        `yaml:"commands"`
}

// SensorConfig selects and configures the sample source of a loop.
type SensorConfig struct {
	Type string `yaml:"type"`
	Unit string `yaml:"unit"`

	// serial
	Port       string        `yaml:"port"`
	Baud       int           `yaml:"baud"`
	Channel    string        `yaml:"channel"`
	StaleAfter time.Duration `yaml:"stale_after"`

	// file
	Path string `yaml:"path"`

	// hcsr04
	TriggerPin int           `yaml:"trigger_pin"`
	EchoPin    int           `yaml:"echo_pin"`
	Timeout    time.Duration `yaml:"timeout"`

	// fake
	Values []float64 `yaml:"values,omitempty"`
	Cycle  bool      `yaml:"cycle"`

	Scale sensor.Scale `yaml:"scale"`
}

// OutputConfig describes one GPIO output line.
type OutputConfig struct {
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
	Initial   bool `yaml:"initial"`
}

// BargraphConfig describes an LED bargraph: one pin per step.
type BargraphConfig struct {
	Pins      []int     `yaml:"pins"`
	Steps     []float64 `yaml:"steps"`
	ActiveLow bool      `yaml:"active_low"`
}

// InputsConfig holds the optional push buttons of a loop.
type InputsConfig struct {
	Enable *InputConfig `yaml:"enable"`
	Hold   *InputConfig `yaml:"hold"`
}

// InputConfig describes one debounced push button.
type InputConfig struct {
	Pin       int           `yaml:"pin"`
	ActiveLow bool          `yaml:"active_low"`
	Window    int           `yaml:"window"`
	Interval  time.Duration `yaml:"interval"`
	Edge      string        `yaml:"edge"`
}

// SerialPortConfig names a serial port.
type SerialPortConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// DisplayConfig selects where samples are shown.
type DisplayConfig struct {
	Log     bool              `yaml:"log"`
	Serial  *SerialPortConfig `yaml:"serial"`
	Channel string            `yaml:"channel"` // defaults to the loop name
}

// CommandsConfig selects where commands are accepted from.
type CommandsConfig struct {
	Serial *SerialPortConfig `yaml:"serial"`
	MQTT   bool              `yaml:"mqtt"`
}

// Default returns a configuration with one ultrasonic distance loop.
func Default() *Config {
	return &Config{
		Broker:    "tcp://localhost:1883",
		ClientID:  DefaultClientID,
		HTTP:      ":8080",
		Heartbeat: 15 * time.Minute,
		GPIOChip:  gpio.DefaultChip,
		Loops:     []LoopConfig{DefaultLoop()},
	}
}

// DefaultLoop returns the distance loop used when no loops are configured.
func DefaultLoop() LoopConfig {
	return LoopConfig{
		Name:   "distance",
		Period: DefaultPeriod,
		Sensor: SensorConfig{
			Type:       SensorHCSR04,
			Unit:       "cm",
			TriggerPin: 23,
			EchoPin:    24,
			Timeout:    sensor.DefaultEchoTimeout,
		},
		Thresholds: logic.ThresholdConfig{Low: 10, High: 30, Hysteresis: 2},
		Actuator:   OutputConfig{Pin: 17},
		Policy:     &actuator.Policy{Below: true},
		Bargraph: &BargraphConfig{
			Pins:  []int{5, 6, 13},
			Steps: []float64{10, 20, 30},
		},
		Display: DisplayConfig{Log: true, Channel: "distance"},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist
// the defaults are returned; missing fields are filled with defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.GPIOChip == "" {
		c.GPIOChip = gpio.DefaultChip
	}
	if len(c.Loops) == 0 {
		c.Loops = []LoopConfig{DefaultLoop()}
	}

	for i := range c.Loops {
		l := &c.Loops[i]
		if l.Period == 0 {
			l.Period = DefaultPeriod
		}
		if l.Sensor.Type == "" {
			l.Sensor.Type = SensorFake
		}
		if l.Sensor.Type == SensorSerial && l.Sensor.Baud == 0 {
			l.Sensor.Baud = sensor.DefaultBaudRate
		}
		if l.Sensor.Type == SensorHCSR04 && l.Sensor.Timeout == 0 {
			l.Sensor.Timeout = sensor.DefaultEchoTimeout
		}
		if l.Policy == nil {
			l.Policy = &actuator.Policy{Below: true}
		}
		if l.Display.Channel == "" {
			l.Display.Channel = l.Name
		}
		for _, in := range []*InputConfig{l.Inputs.Enable, l.Inputs.Hold} {
			if in == nil {
				continue
			}
			if in.Window == 0 {
				in.Window = logic.DefaultDebounceWindow
			}
			if in.Interval == 0 {
				in.Interval = 10 * time.Millisecond
			}
		}
		for _, sp := range []*SerialPortConfig{l.Display.Serial, l.Commands.Serial} {
			if sp != nil && sp.Baud == 0 {
				sp.Baud = sensor.DefaultBaudRate
			}
		}
	}
}

// Validate checks the whole configuration and reports every problem found.
// Errors about thresholds wrap logic.ErrConfigInvalid.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Loops) == 0 {
		errs = append(errs, errors.New("no loops configured"))
	}

	names := make(map[string]bool)
	pins := make(map[int]string)
	claim := func(pin int, what string) {
		if pin < 0 {
			errs = append(errs, fmt.Errorf("%s: negative pin %d", what, pin))
			return
		}
		if prev, ok := pins[pin]; ok {
			errs = append(errs, fmt.Errorf("%s: pin %d already used by %s", what, pin, prev))
			return
		}
		pins[pin] = what
	}

	for i, l := range c.Loops {
		where := fmt.Sprintf("loop %d", i)
		if l.Name != "" {
			where = "loop " + l.Name
		}

		switch {
		case l.Name == "":
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		case strings.ContainsAny(l.Name, "/+# "):
			errs = append(errs, fmt.Errorf("%s: name must not contain '/', '+', '#' or spaces", where))
		case names[l.Name]:
			errs = append(errs, fmt.Errorf("%s: duplicate name", where))
		}
		names[l.Name] = true

		if l.Period <= 0 {
			errs = append(errs, fmt.Errorf("%s: period must be positive", where))
		}
		if l.WaitTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: wait_timeout must not be negative", where))
		}
		if err := l.Thresholds.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", where, err))
		}
		if _, err := logic.ParseUnit(l.Sensor.Unit); err != nil {
			errs = append(errs, fmt.Errorf("%s: sensor: %w", where, err))
		}

		switch l.Sensor.Type {
		case SensorFake:
			if len(l.Sensor.Values) == 0 {
				errs = append(errs, fmt.Errorf("%s: fake sensor needs values", where))
			}
		case SensorSerial:
			if l.Sensor.Port == "" {
				errs = append(errs, fmt.Errorf("%s: serial sensor needs a port", where))
			}
		case SensorFile:
			if l.Sensor.Path == "" {
				errs = append(errs, fmt.Errorf("%s: file sensor needs a path", where))
			}
		case SensorHCSR04:
			claim(l.Sensor.TriggerPin, where+" trigger")
			claim(l.Sensor.EchoPin, where+" echo")
		default:
			errs = append(errs, fmt.Errorf("%s: unknown sensor type %q", where, l.Sensor.Type))
		}

		claim(l.Actuator.Pin, where+" actuator")

		if b := l.Bargraph; b != nil {
			if len(b.Pins) != len(b.Steps) {
				errs = append(errs, fmt.Errorf("%s: bargraph has %d pins for %d steps", where, len(b.Pins), len(b.Steps)))
			}
			if !logic.Ascending(b.Steps) {
				errs = append(errs, fmt.Errorf("%s: bargraph steps must be strictly ascending", where))
			}
			for j, p := range b.Pins {
				claim(p, fmt.Sprintf("%s bargraph %d", where, j))
			}
		}

		for _, ni := range []struct {
			name string
			in   *InputConfig
		}{{"enable", l.Inputs.Enable}, {"hold", l.Inputs.Hold}} {
			name, in := ni.name, ni.in
			if in == nil {
				continue
			}
			claim(in.Pin, where+" "+name+" input")
			if _, err := logic.ParseEdge(in.Edge); err != nil {
				errs = append(errs, fmt.Errorf("%s: %s input: %w", where, name, err))
			}
			if in.Window < 0 {
				errs = append(errs, fmt.Errorf("%s: %s input: window must not be negative", where, name))
			}
		}

		if sp := l.Display.Serial; sp != nil && sp.Port == "" {
			errs = append(errs, fmt.Errorf("%s: display serial needs a port", where))
		}
		if sp := l.Commands.Serial; sp != nil && sp.Port == "" {
			errs = append(errs, fmt.Errorf("%s: command serial needs a port", where))
		}
	}

	return errors.Join(errs...)
}
