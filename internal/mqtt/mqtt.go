// Package mqtt publishes sequencer events with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// Topic is the MQTT topic for power state transitions.
const Topic = "audio/amp/sequencer/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "audio/amp/sequencer/system"

// System event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventOffline   = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a state transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Event is a sequencer transition stamped with wall-clock and tick time.
type Event struct {
	Timestamp time.Time
	Tick      uint32
	From      sequencer.State
	To        sequencer.State
	Pressed   bool
}

// NewEvent stamps a sequencer transition.
func NewEvent(ev sequencer.Event, now time.Time, tick uint32) Event {
	return Event{
		Timestamp: now,
		Tick:      tick,
		From:      ev.From,
		To:        ev.To,
		Pressed:   ev.Pressed,
	}
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Amp AmpPayload `json:"amp"`
}

// AmpPayload contains the transition details.
type AmpPayload struct {
	Timestamp string `json:"timestamp"`
	Tick      uint32 `json:"tick_ms"`
	From      string `json:"from"`
	To        string `json:"to"`
	Button    bool   `json:"button"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(event Event) ([]byte, error) {
	payload := Payload{
		Amp: AmpPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Tick:      event.Tick,
			From:      event.From.String(),
			To:        event.To.String(),
			Button:    event.Pressed,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
