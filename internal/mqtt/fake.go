package mqtt

import (
	"sync"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// FakePublisher records published events for test assertions.
// It is safe for concurrent use; read recorded data through the accessors
// while publishers may still be running.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all loop transitions that were published.
	Events []logic.Event

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handlers map[string]func([]byte)
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the loop transition.
func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	f.Events = append(f.Events, event)

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Subscribe records handler for topic.
func (f *FakePublisher) Subscribe(topic string, handler func(payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]func([]byte))
	}
	f.handlers[topic] = handler
	return nil
}

// Deliver simulates a message from the broker. It reports whether a
// handler was subscribed to topic.
func (f *FakePublisher) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	f.mu.Unlock()
	if ok {
		h(payload)
	}
	return ok
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// PublishedEvents returns a copy of the recorded loop transitions.
func (f *FakePublisher) PublishedEvents() []logic.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.Event(nil), f.Events...)
}

// PublishedSystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) PublishedSystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.handlers = nil
}
