package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Loops         []LoopJSON   `json:"loops"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LoopJSON is the JSON representation of one loop.
type LoopJSON struct {
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Verdict    string         `json:"verdict"`
	Value      *float64       `json:"value"`
	Unit       string         `json:"unit,omitempty"`
	LastSample string         `json:"last_sample,omitempty"`
	Thresholds ThresholdsJSON `json:"thresholds"`
	PeriodMs   int64          `json:"period_ms"`
	Actuator   ActuatorJSON   `json:"actuator"`
	Enabled    bool           `json:"enabled"`
	Hold       bool           `json:"hold"`
	Counts     CountsJSON     `json:"counts"`
}

// ThresholdsJSON is the JSON representation of a threshold config.
type ThresholdsJSON struct {
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Hysteresis float64 `json:"hysteresis"`
}

// ActuatorJSON is the JSON representation of a gate.
type ActuatorJSON struct {
	Pin   string `json:"pin"`
	State string `json:"state"`
}

// CountsJSON is the JSON representation of loop counters.
type CountsJSON struct {
	Cycles      uint64 `json:"cycles"`
	Skipped     uint64 `json:"skipped"`
	Idle        uint64 `json:"idle"`
	Transitions uint64 `json:"transitions"`
	Timeouts    uint64 `json:"timeouts"`
	Dropped     uint64 `json:"dropped_events"`
	Missed      uint64 `json:"missed_periods"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ConfigPath  string `json:"config_path,omitempty"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

// VerdictLabel renders a verdict, with UNKNOWN for the zero value.
func VerdictLabel(v logic.Verdict) string {
	if v == logic.VerdictUnknown {
		return "UNKNOWN"
	}
	return string(v)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func buildLoop(l LoopState) LoopJSON {
	lj := LoopJSON{
		Name:    l.Name,
		State:   l.WorkerState,
		Verdict: VerdictLabel(l.Verdict),
		Thresholds: ThresholdsJSON{
			Low:        l.Thresholds.Low,
			High:       l.Thresholds.High,
			Hysteresis: l.Thresholds.Hysteresis,
		},
		PeriodMs: l.PeriodMs,
		Actuator: ActuatorJSON{Pin: l.ActuatorPin, State: onOff(l.Actuator)},
		Enabled:  l.Enabled,
		Hold:     l.Hold,
		Counts: CountsJSON{
			Cycles:      l.Cycles,
			Skipped:     l.Skipped,
			Idle:        l.Idle,
			Transitions: l.Transitions,
			Timeouts:    l.Timeouts,
			Dropped:     l.Dropped,
			Missed:      l.Missed,
		},
	}
	if l.HasReading {
		v := l.Value
		lj.Value = &v
		lj.Unit = string(l.Unit)
		lj.LastSample = l.LastSample.UTC().Format(time.RFC3339)
	}
	return lj
}

func buildInner(snap Snapshot) StatusInner {
	loops := make([]LoopJSON, 0, len(snap.Loops))
	for _, l := range snap.Loops {
		loops = append(loops, buildLoop(l))
	}

	return StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Loops:         loops,
		Config: ConfigJSON{
			ConfigPath:  snap.Config.ConfigPath,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
