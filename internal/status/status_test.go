package status

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

func tankState() LoopState {
	return LoopState{
		Name:        "tank",
		WorkerState: "WAITING",
		Verdict:     logic.VerdictBelow,
		HasReading:  true,
		Value:       9.5,
		Unit:        logic.UnitCentimeters,
		LastSample:  time.Date(2026, 1, 1, 0, 14, 59, 0, time.UTC),
		Thresholds:  logic.ThresholdConfig{Low: 10, High: 20, Hysteresis: 2},
		PeriodMs:    1000,
		ActuatorPin: "GPIO23",
		Actuator:    true,
		Enabled:     true,
		Cycles:      12,
		Skipped:     1,
		Transitions: 3,
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Ready() {
		t.Error("expected Ready=false without loops")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateLoopKeepsOrder(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.UpdateLoop(LoopState{Name: "tank"})
	tr.UpdateLoop(LoopState{Name: "pump"})
	tr.UpdateLoop(LoopState{Name: "tank", Cycles: 5})

	snap := tr.Snapshot()
	if len(snap.Loops) != 2 {
		t.Fatalf("expected 2 loops, got %d", len(snap.Loops))
	}
	if snap.Loops[0].Name != "tank" || snap.Loops[1].Name != "pump" {
		t.Errorf("unexpected order: %s, %s", snap.Loops[0].Name, snap.Loops[1].Name)
	}
	tank, ok := snap.Loop("tank")
	if !ok || tank.Cycles != 5 {
		t.Errorf("tank: got %+v (found=%v)", tank, ok)
	}
	if _, ok := snap.Loop("missing"); ok {
		t.Error("expected missing loop not to be found")
	}
}

func TestReady(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateLoop(LoopState{Name: "a", HasReading: true})
	tr.UpdateLoop(LoopState{Name: "b"})
	if tr.Snapshot().Ready() {
		t.Error("expected not ready until every loop has a reading")
	}
	tr.UpdateLoop(LoopState{Name: "b", HasReading: true})
	if !tr.Snapshot().Ready() {
		t.Error("expected ready")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(15 * time.Minute)}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateLoop(tankState())

	snap1 := tr.Snapshot()

	changed := tankState()
	changed.Verdict = logic.VerdictAbove
	tr.UpdateLoop(changed)

	if snap1.Loops[0].Verdict != logic.VerdictBelow {
		t.Error("snapshot should be a copy; loop was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Loops:         []LoopState{tankState()},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(parsed.Status.Loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(parsed.Status.Loops))
	}
	l := parsed.Status.Loops[0]
	if l.Verdict != "BELOW" {
		t.Errorf("Verdict: got %q, want BELOW", l.Verdict)
	}
	if l.Value == nil || *l.Value != 9.5 {
		t.Errorf("Value: got %v, want 9.5", l.Value)
	}
	if l.Actuator.State != "ON" || l.Actuator.Pin != "GPIO23" {
		t.Errorf("Actuator: got %+v", l.Actuator)
	}
	if l.Thresholds.Low != 10 || l.Thresholds.High != 20 || l.Thresholds.Hysteresis != 2 {
		t.Errorf("Thresholds: got %+v", l.Thresholds)
	}
	if l.Counts.Cycles != 12 || l.Counts.Skipped != 1 || l.Counts.Transitions != 3 {
		t.Errorf("Counts: got %+v", l.Counts)
	}
	if l.LastSample != "2026-01-01T00:14:59Z" {
		t.Errorf("LastSample: got %q", l.LastSample)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" || parsed.Status.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", parsed.Status.Event, parsed.Status.Reason)
	}
}

func TestFormatJSONLoopWithoutReading(t *testing.T) {
	snap := Snapshot{
		Loops:     []LoopState{{Name: "tank", WorkerState: "WAITING"}},
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	loop := raw["status"].(map[string]interface{})["loops"].([]interface{})[0].(map[string]interface{})
	if loop["verdict"] != "UNKNOWN" {
		t.Errorf("verdict: got %v, want UNKNOWN", loop["verdict"])
	}
	if v, exists := loop["value"]; !exists || v != nil {
		t.Errorf("value: expected explicit null, got %v (exists=%v)", v, exists)
	}
	if _, exists := loop["last_sample"]; exists {
		t.Error("last_sample should be omitted before the first reading")
	}
}

func TestFormatJSONNoLoopsIsEmptyArray(t *testing.T) {
	data := FormatJSON(Snapshot{})
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if string(raw["status"]["loops"]) != "[]" {
		t.Errorf("loops: got %s, want []", raw["status"]["loops"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Loops:         []LoopState{tankState()},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{Broker: "tcp://localhost:1883"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "HEARTBEAT", ""), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if len(parsed.Status.Loops) != 1 {
		t.Errorf("expected loop state in status event")
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(30 * time.Minute)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tr.UpdateLoop(LoopState{Name: fmt.Sprintf("loop%d", w), Cycles: uint64(i)})
				tr.SetMQTTConnected(i%2 == 0)
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()

	if n := len(tr.Snapshot().Loops); n != 3 {
		t.Errorf("expected 3 loops, got %d", n)
	}
}
