package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// FakeIO is a test double that records output levels and returns scripted
// button samples.
type FakeIO struct {
	mu sync.Mutex

	// Samples contains scripted raw button levels (true = released).
	// Each call to ReadButton consumes the next sample; once exhausted the
	// last sample repeats. With no samples the button reads released.
	Samples []bool
	index   int

	relays [len(safeOrder)]bool
	led    bool

	// Writes counts SetRelay and SetLED calls.
	Writes int

	// Journal records every write in order, e.g. "live=true", "led=false".
	Journal []string

	// Violations records writes that left live energized without neutral.
	Violations []string

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIO creates a FakeIO with the given raw button samples.
func NewFakeIO(samples []bool) *FakeIO {
	return &FakeIO{Samples: samples}
}

// SetRelay records the relay level and checks the neutral/live invariant.
func (f *FakeIO) SetRelay(r sequencer.Relay, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if int(r) >= len(f.relays) {
		return
	}
	f.relays[r] = on
	f.Writes++
	entry := fmt.Sprintf("%s=%v", r, on)
	f.Journal = append(f.Journal, entry)

	if !f.relays[sequencer.RelayNeutral] &&
		(f.relays[sequencer.RelayLive] || f.relays[sequencer.RelayLiveResistor]) {
		f.Violations = append(f.Violations, entry)
	}
}

// SetLED records the LED level.
func (f *FakeIO) SetLED(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.led = on
	f.Writes++
	f.Journal = append(f.Journal, fmt.Sprintf("led=%v", on))
}

// ReadButton returns the next scripted raw level.
func (f *FakeIO) ReadButton() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Samples) == 0 {
		return true
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v
}

// Relay returns the last level written to r.
func (f *FakeIO) Relay(r sequencer.Relay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if int(r) >= len(f.relays) {
		return false
	}
	return f.relays[r]
}

// LED returns the last LED level written.
func (f *FakeIO) LED() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.led
}

// AllOff reports whether every relay and the LED are off.
func (f *FakeIO) AllOff() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, on := range f.relays {
		if on {
			return false
		}
	}
	return !f.led
}

// Close drives every output off in safe order and marks the fake closed.
func (f *FakeIO) Close() error {
	for _, r := range safeOrder {
		f.SetRelay(r, false)
	}
	f.SetLED(false)

	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset rewinds the button script and clears recorded writes.
func (f *FakeIO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.index = 0
	f.relays = [len(safeOrder)]bool{}
	f.led = false
	f.Writes = 0
	f.Journal = nil
	f.Violations = nil
	f.Closed = false
}
