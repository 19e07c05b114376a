// Package gpio drives the relay, LED and button lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinNeutral   = 17
	DefaultPinLiveRes   = 27
	DefaultPinLive      = 22
	DefaultPinSpeaker   = 23
	DefaultPinLED       = 24
	DefaultPinButton    = 25
	DefaultConsumerName = "amp-sequencer"
)

// Lines maps the sequencer's outputs and input to GPIO lines.
type Lines struct {
	Chip         string
	Neutral      int
	LiveResistor int
	Live         int
	Speaker      int
	LED          int
	Button       int

	// SpeakerActiveLow is set when the speaker relay driver energizes on a
	// low level, as on the reference board.
	SpeakerActiveLow bool
}

// DefaultLines returns the reference wiring.
func DefaultLines() Lines {
	return Lines{
		Chip:             DefaultChip,
		Neutral:          DefaultPinNeutral,
		LiveResistor:     DefaultPinLiveRes,
		Live:             DefaultPinLive,
		Speaker:          DefaultPinSpeaker,
		LED:              DefaultPinLED,
		Button:           DefaultPinButton,
		SpeakerActiveLow: true,
	}
}

// Relay returns the line offset for r.
func (l Lines) Relay(r sequencer.Relay) int {
	switch r {
	case sequencer.RelayNeutral:
		return l.Neutral
	case sequencer.RelayLiveResistor:
		return l.LiveResistor
	case sequencer.RelayLive:
		return l.Live
	case sequencer.RelaySpeaker:
		return l.Speaker
	}
	return -1
}

// Validate checks that every line is set and no line is used twice.
func (l Lines) Validate() error {
	if l.Chip == "" {
		return errors.New("gpio: chip name is empty")
	}
	named := []struct {
		name   string
		offset int
	}{
		{"neutral", l.Neutral},
		{"live_resistor", l.LiveResistor},
		{"live", l.Live},
		{"speaker", l.Speaker},
		{"led", l.LED},
		{"button", l.Button},
	}
	seen := make(map[int]string, len(named))
	for _, n := range named {
		if n.offset < 0 {
			return fmt.Errorf("gpio: %s line %d is negative", n.name, n.offset)
		}
		if other, ok := seen[n.offset]; ok {
			return fmt.Errorf("gpio: %s and %s share line %d", other, n.name, n.offset)
		}
		seen[n.offset] = n.name
	}
	return nil
}

// safeOrder is the order outputs are released in: speakers first, neutral last.
var safeOrder = [...]sequencer.Relay{
	sequencer.RelaySpeaker,
	sequencer.RelayLive,
	sequencer.RelayLiveResistor,
	sequencer.RelayNeutral,
}
