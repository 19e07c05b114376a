package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

func TestFormatPayload(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Tick:      123456,
		From:      sequencer.StateOff,
		To:        sequencer.StateNeutralEnergized,
		Pressed:   true,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Amp.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Amp.Timestamp)
	}
	if parsed.Amp.Tick != 123456 {
		t.Errorf("unexpected tick: %d", parsed.Amp.Tick)
	}
	if parsed.Amp.From != "OFF" {
		t.Errorf("unexpected from: %s", parsed.Amp.From)
	}
	if parsed.Amp.To != "NEUTRAL_ENERGIZED" {
		t.Errorf("unexpected to: %s", parsed.Amp.To)
	}
	if !parsed.Amp.Button {
		t.Error("expected button=true")
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Tick:      42,
		From:      sequencer.StateSpeakerPrecharge,
		To:        sequencer.StateOn,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"amp":{"timestamp":"2026-02-02T22:18:12Z","tick_ms":42,"from":"SPEAKER_PRECHARGE","to":"ON","button":false}}`
	if string(payload) != want {
		t.Errorf("unexpected JSON:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatPayloadConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := Event{
		Timestamp: time.Date(2026, 2, 3, 0, 18, 12, 0, loc),
		From:      sequencer.StateOn,
		To:        sequencer.StateShutdownStep1,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Amp.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Amp.Timestamp)
	}
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := NewEvent(sequencer.Event{
		From:    sequencer.StateShutdownBlink,
		To:      sequencer.StateOff,
		Pressed: false,
	}, now, 99)

	if !ev.Timestamp.Equal(now) || ev.Tick != 99 {
		t.Errorf("unexpected stamp: %+v", ev)
	}
	if ev.From != sequencer.StateShutdownBlink || ev.To != sequencer.StateOff || ev.Pressed {
		t.Errorf("unexpected transition: %+v", ev)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		name  string
		event SystemEvent
		want  string
	}{
		{
			name: "startup",
			event: SystemEvent{
				Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
				Event:     EventStartup,
			},
			want: `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"STARTUP"}}`,
		},
		{
			name: "shutdown with reason",
			event: SystemEvent{
				Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
				Event:     EventShutdown,
				Reason:    "SIGTERM",
			},
			want: `{"system":{"timestamp":"2026-02-02T22:18:12Z","event":"SHUTDOWN","reason":"SIGTERM"}}`,
		},
		{
			name: "raw payload passthrough",
			event: SystemEvent{
				Event:      EventHeartbeat,
				RawPayload: []byte(`{"custom":true}`),
			},
			want: `{"custom":true}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	fake := NewFakePublisher()

	event := Event{
		Timestamp: time.Now(),
		From:      sequencer.StateOff,
		To:        sequencer.StateNeutralEnergized,
		Pressed:   true,
	}
	if err := fake.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.Events) != 1 || len(fake.Payloads) != 1 {
		t.Fatalf("expected 1 event and payload, got %d/%d", len(fake.Events), len(fake.Payloads))
	}

	if err := fake.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventStartup}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.SystemEvents) != 1 || fake.SystemEvents[0].Event != EventStartup {
		t.Errorf("unexpected system events: %+v", fake.SystemEvents)
	}

	if err := fake.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.Closed {
		t.Error("expected Closed to be true")
	}

	fake.Reset()
	if len(fake.Events) != 0 || len(fake.SystemEvents) != 0 || fake.Closed {
		t.Error("Reset did not clear state")
	}
}

func TestFakePublisherErrors(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker down")
	fake.PublishSystemError = errors.New("broker down")

	if err := fake.Publish(Event{}); err == nil {
		t.Error("expected publish error")
	}
	if err := fake.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected system publish error")
	}
	if len(fake.Events) != 0 || len(fake.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherImplementsInterfaces(t *testing.T) {
	var _ Publisher = NewFakePublisher()
	var _ ConnectionStatus = NewFakePublisher()
	var _ Publisher = (*RealPublisher)(nil)
	var _ ConnectionStatus = (*RealPublisher)(nil)
}
