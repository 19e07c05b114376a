package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// bufferCapacity is the number of messages held while the broker is away.
const bufferCapacity = 100

// publishTimeout bounds how long send waits for a QoS 1 acknowledgement.
const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker.
// The connection is made in the background; messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting. It does not wait for the connection.
func NewRealPublisher(broker, clientID string, log zerolog.Logger) *RealPublisher {
	p := &RealPublisher{
		log: log.With().Str("component", "mqtt").Str("broker", broker).Logger(),
		buf: newRingBuffer(bufferCapacity),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("connection lost")
		})

	if will, err := offlineWill(time.Now()); err != nil {
		p.log.Error().Err(err).Msg("no last will registered")
	} else {
		opts.SetWill(TopicSystem, will, 1, true)
	}

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// offlineWill is the retained payload the broker publishes on our behalf
// when the connection drops uncleanly.
func offlineWill(now time.Time) (string, error) {
	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: now,
		Event:     EventOffline,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return "", fmt.Errorf("format last will: %w", err)
	}
	return string(will), nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a transition to the broker.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1: transitions are rare and worth delivering.
	return p.send(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	return p.settle(msg, token, publishTimeout)
}

// settle waits for token and buffers msg only if paho rejected it.
// A token that times out is still in flight inside paho, which resends
// it after a reconnect; buffering it as well would publish it twice.
// Delivery is at-least-once either way.
func (p *RealPublisher) settle(msg bufferedMsg, token paho.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.enqueue(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg bufferedMsg) {
	p.mu.Lock()
	overwrote := p.buf.push(msg)
	dropped := p.buf.dropped
	p.mu.Unlock()

	if overwrote && dropped == 1 {
		p.log.Warn().Int("capacity", bufferCapacity).Msg("offline buffer full, dropping oldest")
	}
}

// onConnect replays buffered messages. paho runs it on its own goroutine.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info().Int("replayed", len(msgs)).Msg("connected")
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second to flush in-flight messages
	return nil
}
