// Package status provides a thread-safe status tracker for the sensor-loop daemon.
// It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ConfigPath  string
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// LoopState is the last reported state of one sensor loop.
type LoopState struct {
	Name        string
	WorkerState string
	Verdict     logic.Verdict
	HasReading  bool
	Value       float64
	Unit        logic.Unit
	LastSample  time.Time
	Thresholds  logic.ThresholdConfig
	PeriodMs    int64
	ActuatorPin string
	Actuator    bool
	Enabled     bool
	Hold        bool
	Cycles      uint64
	Skipped     uint64
	Idle        uint64
	Transitions uint64
	Timeouts    uint64
	Dropped     uint64
	Missed      uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Loops         []LoopState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every loop has produced at least one reading.
func (s Snapshot) Ready() bool {
	if len(s.Loops) == 0 {
		return false
	}
	for _, l := range s.Loops {
		if !l.HasReading {
			return false
		}
	}
	return true
}

// Loop returns the state of the named loop.
func (s Snapshot) Loop(name string) (LoopState, bool) {
	for _, l := range s.Loops {
		if l.Name == name {
			return l, true
		}
	}
	return LoopState{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateLoop replaces the state of a loop. Loops keep the order in which
// they were first reported. Called by each worker after every cycle.
func (t *Tracker) UpdateLoop(ls LoopState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.snap.Loops {
		if t.snap.Loops[i].Name == ls.Name {
			t.snap.Loops[i] = ls
			return
		}
	}
	t.snap.Loops = append(t.snap.Loops, ls)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Loops = append([]LoopState(nil), t.snap.Loops...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
