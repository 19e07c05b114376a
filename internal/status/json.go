package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string          `json:"event,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	State          string          `json:"state"`
	PhaseTimer     uint32          `json:"phase_timer"`
	LED            bool            `json:"led"`
	Relays         RelaysJSON      `json:"relays"`
	TickMs         uint32          `json:"tick_ms"`
	Steps          uint64          `json:"steps"`
	Resets         uint64          `json:"resets"`
	Transitions    uint64          `json:"transitions"`
	LastTransition *TransitionJSON `json:"last_transition,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	StartTime      string          `json:"start_time"`
	Timestamp      string          `json:"timestamp"`
	MQTT           MQTTStatus      `json:"mqtt"`
	Tasks          []TaskJSON      `json:"tasks"`
	Config         ConfigJSON      `json:"config"`
}

// RelaysJSON reports the commanded level of each relay (true = energized).
type RelaysJSON struct {
	Neutral      bool `json:"neutral"`
	LiveResistor bool `json:"live_resistor"`
	Live         bool `json:"live"`
	Speaker      bool `json:"speaker"`
}

// TransitionJSON is the JSON representation of the latest state change.
type TransitionJSON struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
	TickMs    uint32 `json:"tick_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Dropped   uint64 `json:"dropped"`
}

// TaskJSON is the JSON representation of one scheduler task.
type TaskJSON struct {
	Name           string `json:"name"`
	Delay          uint32 `json:"delay_ticks"`
	Period         uint32 `json:"period_ticks"`
	Runs           uint64 `json:"runs"`
	Coalesced      uint64 `json:"coalesced"`
	LastDurationUs int64  `json:"last_duration_us"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	StepMs             int64  `json:"step_ms"`
	LiveResistorSteps  uint32 `json:"live_resistor_steps"`
	PrechargeSteps     uint32 `json:"precharge_steps"`
	ShutdownBlinkSteps uint32 `json:"shutdown_blink_steps"`
	SettleMs           int64  `json:"settle_ms"`
	HeartbeatMs        int64  `json:"heartbeat_ms"`
	Broker             string `json:"broker"`
	HTTPPort           string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	seq := snap.Sequencer

	inner := StatusInner{
		State:      seq.State.String(),
		PhaseTimer: seq.Timer,
		LED:        seq.LED,
		Relays: RelaysJSON{
			Neutral:      seq.Relay(sequencer.RelayNeutral),
			LiveResistor: seq.Relay(sequencer.RelayLiveResistor),
			Live:         seq.Relay(sequencer.RelayLive),
			Speaker:      seq.Relay(sequencer.RelaySpeaker),
		},
		TickMs:        snap.TickMs,
		Steps:         seq.Steps,
		Resets:        seq.Resets,
		Transitions:   snap.Transitions,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Dropped:   snap.QueueDropped,
		},
		Tasks: make([]TaskJSON, 0, len(snap.Tasks)),
		Config: ConfigJSON{
			StepMs:             snap.Config.StepMs,
			LiveResistorSteps:  snap.Config.LiveResistorSteps,
			PrechargeSteps:     snap.Config.PrechargeSteps,
			ShutdownBlinkSteps: snap.Config.ShutdownBlinkSteps,
			SettleMs:           snap.Config.SettleMs,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			Broker:             snap.Config.Broker,
			HTTPPort:           snap.Config.HTTPPort,
		},
	}

	if snap.Last != nil {
		inner.LastTransition = &TransitionJSON{
			From:      snap.Last.From.String(),
			To:        snap.Last.To.String(),
			Timestamp: snap.Last.At.UTC().Format(time.RFC3339),
			TickMs:    snap.Last.Tick,
		}
	}

	for _, ts := range snap.Tasks {
		inner.Tasks = append(inner.Tasks, TaskJSON{
			Name:           ts.Name,
			Delay:          ts.Delay,
			Period:         ts.Period,
			Runs:           ts.Runs,
			Coalesced:      ts.Coalesced,
			LastDurationUs: ts.LastDuration.Microseconds(),
		})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
