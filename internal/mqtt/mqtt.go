// Package mqtt publishes loop transitions and daemon lifecycle events to an
// MQTT broker and receives loop commands from it.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// TopicPrefix is the root of every topic used by the daemon.
const TopicPrefix = "sensor-loop"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = TopicPrefix + "/system"

// EventTopic returns the topic carrying verdict transitions of a loop.
func EventTopic(loop string) string {
	return TopicPrefix + "/" + loop + "/events"
}

// CommandTopic returns the topic a loop accepts command frames on.
func CommandTopic(loop string) string {
	return TopicPrefix + "/" + loop + "/command"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a loop transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers messages of a topic to a handler. Subscriptions
// survive reconnects.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Loop LoopPayload `json:"loop"`
}

// LoopPayload contains one verdict transition.
type LoopPayload struct {
	Timestamp string  `json:"timestamp"`
	Name      string  `json:"name"`
	Verdict   string  `json:"verdict"`
	Previous  string  `json:"previous"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Actuator  string  `json:"actuator"`
}

// VerdictString renders a verdict for payloads, with UNKNOWN for the zero value.
func VerdictString(v logic.Verdict) string {
	if v == logic.VerdictUnknown {
		return "UNKNOWN"
	}
	return string(v)
}

// LevelString renders an output level.
func LevelString(level bool) string {
	if level {
		return "ON"
	}
	return "OFF"
}

// FormatPayload creates the JSON payload for a loop transition.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Loop: LoopPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Name:      event.Loop,
			Verdict:   VerdictString(event.To),
			Previous:  VerdictString(event.From),
			Value:     event.Value,
			Unit:      string(event.Unit),
			Actuator:  LevelString(event.Actuator),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Subscribe(string, func(payload []byte)) error { return nil }
func (NopPublisher) IsConnected() bool { return false }
func (NopPublisher) Close() error { return nil }
