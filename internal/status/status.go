// Package status provides a thread-safe status tracker for the amp-sequencer daemon.
// It is written from the dispatch loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/amp-sequencer/internal/scheduler"
	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// Config contains daemon configuration for display.
type Config struct {
	StepMs             int64
	LiveResistorSteps  uint32
	PrechargeSteps     uint32
	ShutdownBlinkSteps uint32
	SettleMs           int64
	HeartbeatMs        int64
	Broker             string
	HTTPPort           string
}

// Transition records the most recent state change.
type Transition struct {
	From sequencer.State
	To   sequencer.State
	At   time.Time
	Tick uint32
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Sequencer     sequencer.Snapshot
	TickMs        uint32
	Tasks         []scheduler.TaskStats
	Transitions   uint64
	Last          *Transition
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	QueueDropped  uint64
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the sequencer state and the tick count it was taken at.
// Called by the sequencer task after every step.
func (t *Tracker) Update(seq sequencer.Snapshot, tickMs uint32) {
	t.mu.Lock()
	t.snap.Sequencer = seq
	t.snap.TickMs = tickMs
	t.mu.Unlock()
}

// RecordTransition counts a state change and keeps it as the latest.
func (t *Tracker) RecordTransition(ev sequencer.Event, at time.Time, tickMs uint32) {
	t.mu.Lock()
	t.snap.Transitions++
	t.snap.Last = &Transition{From: ev.From, To: ev.To, At: at, Tick: tickMs}
	t.mu.Unlock()
}

// SetTasks stores scheduler statistics.
func (t *Tracker) SetTasks(stats []scheduler.TaskStats) {
	t.mu.Lock()
	t.snap.Tasks = stats
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetQueueDropped sets the number of events lost to a full publish queue.
func (t *Tracker) SetQueueDropped(n uint64) {
	t.mu.Lock()
	t.snap.QueueDropped = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Tasks != nil {
		s.Tasks = append([]scheduler.TaskStats(nil), s.Tasks...)
	}
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
