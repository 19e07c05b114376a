package sequencer

// Sequencer drives the relays through the power-up and power-down phases.
// It is not safe for concurrent use: Step must only be called from the
// scheduler's dispatch loop. Snapshot copies are safe to hand to other
// goroutines.
type Sequencer struct {
	cfg   Config
	io    IO
	delay Delayer

	state  State
	timer  uint32
	button EdgeDetector
	ledOn  bool
	relays [numRelays]bool

	steps  uint64
	resets uint64
}

// New creates a Sequencer in the Off state. Outputs are not touched until
// the first Step; call Reset to force them off immediately.
func New(cfg Config, io IO, delay Delayer) *Sequencer {
	if delay == nil {
		delay = SleepDelayer{}
	}
	return &Sequencer{
		cfg:    cfg,
		io:     io,
		delay:  delay,
		button: EdgeDetector{},
	}
}

// Reset de-energizes everything and returns to Off.
func (s *Sequencer) Reset() {
	s.allOff()
	s.state = StateOff
	s.timer = 0
}

// State returns the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Snapshot returns the current state and commanded outputs.
func (s *Sequencer) Snapshot() Snapshot {
	return Snapshot{
		State:  s.state,
		Timer:  s.timer,
		LED:    s.ledOn,
		Relays: s.relays,
		Steps:  s.steps,
		Resets: s.resets,
	}
}

// Step is the periodic task body. It samples the button, performs the
// current state's actions and returns the transition taken, if any.
func (s *Sequencer) Step() (Event, bool) {
	s.steps++
	pressed := s.button.Sample(s.io.ReadButton())
	from := s.state

	switch s.state {
	case StateOff:
		s.allOff()
		if pressed {
			s.state = StateNeutralEnergized
		}

	case StateNeutralEnergized:
		s.setRelay(RelayNeutral, true)
		s.setLED(true)
		s.timer = 0
		s.state = StateLiveViaResistor

	case StateLiveViaResistor:
		s.setRelay(RelayLiveResistor, true)
		s.blink()
		if s.tick(s.cfg.LiveResistorSteps) {
			s.state = StateSpeakerPrecharge
		}

	case StateSpeakerPrecharge:
		// Live must be closed before the resistor path opens.
		s.setRelay(RelayLive, true)
		s.delay.Delay(s.cfg.SettleDelay)
		s.setRelay(RelayLiveResistor, false)
		s.blink()
		if s.tick(s.cfg.PrechargeSteps) {
			s.state = StateOn
		}

	case StateOn:
		s.setLED(true)
		s.setRelay(RelaySpeaker, true)
		if pressed {
			s.state = StateShutdownStep1
		}

	case StateShutdownStep1:
		s.setLED(false)
		s.setRelay(RelaySpeaker, false)
		s.state = StateShutdownStep2

	case StateShutdownStep2:
		s.setLED(true)
		s.setRelay(RelayLive, false)
		s.state = StateShutdownStep3

	case StateShutdownStep3:
		s.setLED(false)
		s.setRelay(RelayNeutral, false)
		s.timer = 0
		s.state = StateShutdownBlink

	case StateShutdownBlink:
		s.blink()
		if s.tick(s.cfg.ShutdownBlinkSteps) {
			s.allOff()
			s.state = StateOff
		}

	default:
		s.resets++
		s.Reset()
	}

	if s.state == from {
		return Event{}, false
	}
	return Event{From: from, To: s.state, Pressed: pressed && (from == StateOff || from == StateOn)}, true
}

// tick advances the phase timer and reports whether n steps have elapsed,
// resetting the timer when they have.
func (s *Sequencer) tick(n uint32) bool {
	s.timer++
	if s.timer < n {
		return false
	}
	s.timer = 0
	return true
}

func (s *Sequencer) blink() {
	s.setLED(!s.ledOn)
}

func (s *Sequencer) setLED(on bool) {
	s.ledOn = on
	s.io.SetLED(on)
}

func (s *Sequencer) setRelay(r Relay, on bool) {
	s.relays[r] = on
	s.io.SetRelay(r, on)
}

// allOff releases every output. Speakers go first and neutral last so live
// is never energized without neutral.
func (s *Sequencer) allOff() {
	s.setRelay(RelaySpeaker, false)
	s.setRelay(RelayLive, false)
	s.setRelay(RelayLiveResistor, false)
	s.setRelay(RelayNeutral, false)
	s.setLED(false)
}
