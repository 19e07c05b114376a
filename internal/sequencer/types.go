// Package sequencer contains the amplifier power-up/power-down state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or clock).
// All timing is counted in invocations of Step, which the scheduler calls at
// a fixed period.
package sequencer

import (
	"errors"
	"fmt"
	"time"
)

// State is a power sequencing state.
type State uint8

const (
	StateOff State = iota
	StateNeutralEnergized
	StateLiveViaResistor
	StateSpeakerPrecharge
	StateOn
	StateShutdownStep1
	StateShutdownStep2
	StateShutdownStep3
	StateShutdownBlink
)

var stateNames = [...]string{
	StateOff:              "OFF",
	StateNeutralEnergized: "NEUTRAL_ENERGIZED",
	StateLiveViaResistor:  "LIVE_VIA_RESISTOR",
	StateSpeakerPrecharge: "SPEAKER_PRECHARGE",
	StateOn:               "ON",
	StateShutdownStep1:    "SHUTDOWN_STEP_1",
	StateShutdownStep2:    "SHUTDOWN_STEP_2",
	StateShutdownStep3:    "SHUTDOWN_STEP_3",
	StateShutdownBlink:    "SHUTDOWN_BLINK",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("INVALID(%d)", uint8(s))
}

// Relay identifies one of the amplifier relays.
type Relay uint8

const (
	RelayNeutral      Relay = iota // mains neutral
	RelayLiveResistor              // mains live through inrush resistors
	RelayLive                      // mains live, direct
	RelaySpeaker                   // speaker output
	numRelays
)

var relayNames = [...]string{
	RelayNeutral:      "neutral",
	RelayLiveResistor: "live_resistor",
	RelayLive:         "live",
	RelaySpeaker:      "speaker",
}

func (r Relay) String() string {
	if r < numRelays {
		return relayNames[r]
	}
	return fmt.Sprintf("relay(%d)", uint8(r))
}

// Relays lists every relay in id order.
var Relays = [...]Relay{RelayNeutral, RelayLiveResistor, RelayLive, RelaySpeaker}

// IO is the hardware boundary. Implementations are plain register or line
// writes and are treated as infallible.
type IO interface {
	// SetRelay energizes (true) or releases (false) a relay. For the speaker
	// relay, true means speakers connected.
	SetRelay(r Relay, on bool)

	// SetLED drives the power LED.
	SetLED(on bool)

	// ReadButton returns the raw button line level. The button is wired
	// active-low: false means pressed.
	ReadButton() bool
}

// Delayer blocks the caller for a short, bounded duration.
type Delayer interface {
	Delay(d time.Duration)
}

// SleepDelayer implements Delayer with time.Sleep.
type SleepDelayer struct{}

// Delay sleeps for d.
func (SleepDelayer) Delay(d time.Duration) {
	time.Sleep(d)
}

// Default phase lengths, in Step invocations (100 ms each at the default
// step period).
const (
	DefaultLiveResistorSteps  = 10 // 1 s of inrush limiting
	DefaultPrechargeSteps     = 20 // 2 s for the amp rails to settle
	DefaultShutdownBlinkSteps = 10
	DefaultSettleDelay        = 5 * time.Millisecond

	// MaxSettleDelay bounds the blocking wait inside a single step.
	MaxSettleDelay = 50 * time.Millisecond
)

// Config holds the phase timings.
type Config struct {
	LiveResistorSteps  uint32        // N1: steps powered through the resistors
	PrechargeSteps     uint32        // N2: steps before the speakers are connected
	ShutdownBlinkSteps uint32        // N3: steps of LED blinking after power-down
	SettleDelay        time.Duration // wait between closing live and opening the resistor relay
}

// DefaultConfig returns the reference board timings.
func DefaultConfig() Config {
	return Config{
		LiveResistorSteps:  DefaultLiveResistorSteps,
		PrechargeSteps:     DefaultPrechargeSteps,
		ShutdownBlinkSteps: DefaultShutdownBlinkSteps,
		SettleDelay:        DefaultSettleDelay,
	}
}

// Validate checks the timings.
func (c Config) Validate() error {
	var errs []error
	if c.LiveResistorSteps == 0 {
		errs = append(errs, errors.New("live_resistor_steps must be > 0"))
	}
	if c.PrechargeSteps == 0 {
		errs = append(errs, errors.New("precharge_steps must be > 0"))
	}
	if c.ShutdownBlinkSteps == 0 {
		errs = append(errs, errors.New("shutdown_blink_steps must be > 0"))
	}
	if c.SettleDelay < 0 || c.SettleDelay >= MaxSettleDelay {
		errs = append(errs, fmt.Errorf("settle_delay must be in [0, %v)", MaxSettleDelay))
	}
	return errors.Join(errs...)
}

// Event is a state transition to be published.
type Event struct {
	From    State
	To      State
	Pressed bool // the transition was caused by a button press
}

// Snapshot is a point-in-time view of the sequencer and its outputs.
type Snapshot struct {
	State  State
	Timer  uint32
	LED    bool
	Relays [numRelays]bool
	Steps  uint64
	Resets uint64 // recoveries from an invalid state
}

// Relay returns the commanded level of r.
func (s Snapshot) Relay(r Relay) bool {
	if r >= numRelays {
		return false
	}
	return s.Relays[r]
}
