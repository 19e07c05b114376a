package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// stubToken completes immediately or never, with an optional error.
type stubToken struct {
	paho.Token
	done bool
	err  error
}

func (s stubToken) WaitTimeout(time.Duration) bool { return s.done }
func (s stubToken) Error() error                   { return s.err }

func newOfflinePublisher() *RealPublisher {
	return &RealPublisher{log: zerolog.Nop(), buf: newRingBuffer(4)}
}

func TestSettleAcknowledged(t *testing.T) {
	p := newOfflinePublisher()
	msg := bufferedMsg{topic: Topic, payload: []byte("{}"), qos: 1}

	if err := p.settle(msg, stubToken{done: true}, time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.buf.len() != 0 {
		t.Errorf("buffered %d messages after ack, want 0", p.buf.len())
	}
}

func TestSettleTimeoutDoesNotBuffer(t *testing.T) {
	p := newOfflinePublisher()
	msg := bufferedMsg{topic: Topic, payload: []byte("{}"), qos: 1}

	if err := p.settle(msg, stubToken{done: false}, time.Millisecond); err == nil {
		t.Fatal("expected timeout error")
	}
	// paho still holds the message and resends it; a second copy would duplicate it.
	if p.buf.len() != 0 {
		t.Errorf("buffered %d messages after timeout, want 0", p.buf.len())
	}
}

func TestSettleErrorBuffers(t *testing.T) {
	p := newOfflinePublisher()
	msg := bufferedMsg{topic: TopicSystem, payload: []byte("{}"), qos: 1, retained: true}
	brokerErr := errors.New("not connected")

	err := p.settle(msg, stubToken{done: true, err: brokerErr}, time.Millisecond)
	if !errors.Is(err, brokerErr) {
		t.Fatalf("got %v, want wrapped %v", err, brokerErr)
	}

	got := p.buf.drainAll()
	if len(got) != 1 {
		t.Fatalf("buffered %d messages, want 1", len(got))
	}
	if got[0].topic != TopicSystem || !got[0].retained {
		t.Errorf("buffered message lost metadata: %+v", got[0])
	}
}

func TestOfflineWill(t *testing.T) {
	will, err := offlineWill(time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		System struct {
			Event  string `json:"event"`
			Reason string `json:"reason"`
		} `json:"system"`
	}
	if err := json.Unmarshal([]byte(will), &doc); err != nil {
		t.Fatalf("will is not JSON: %v", err)
	}
	if doc.System.Event != EventOffline || doc.System.Reason != "MQTT_DISCONNECT" {
		t.Errorf("unexpected will: %s", will)
	}
}
