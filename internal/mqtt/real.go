package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/sensor-loop/internal/logic"
)

// BufferCapacity is the number of messages kept while the broker is unreachable.
const BufferCapacity = 256

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client

	mu   sync.Mutex
	buf  *ringBuffer
	subs map[string]func([]byte)
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately. The broker retains an OFFLINE system event as last will.
func NewRealPublisher(broker, clientID string) *RealPublisher {
	p := &RealPublisher{
		buf:  newRingBuffer(BufferCapacity),
		subs: make(map[string]func([]byte)),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// onConnect restores subscriptions and replays buffered messages.
// Runs on a paho goroutine after every (re)connect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buf.drainAll()
	subs := make(map[string]func([]byte), len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()

	log.Printf("mqtt: connected, replaying %d buffered messages", len(pending))

	for topic, handler := range subs {
		if err := p.subscribe(topic, handler); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, err)
		}
	}
	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("mqtt: replay to %s timed out", msg.topic)
			continue
		}
		if err := token.Error(); err != nil {
			log.Printf("mqtt: replay to %s: %v", msg.topic, err)
		}
	}
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Publish sends a loop transition to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(EventTopic(event.Loop), 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// Subscribe registers handler for topic. The subscription is made now if
// connected and restored after every reconnect.
func (p *RealPublisher) Subscribe(topic string, handler func(payload []byte)) error {
	p.mu.Lock()
	p.subs[topic] = handler
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(topic, handler)
}

func (p *RealPublisher) subscribe(topic string, handler func([]byte)) error {
	token := p.client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		handler(m.Payload())
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
