//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/time/rate"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// RealIO drives the amplifier from actual hardware using the Linux GPIO
// character device. Line errors are logged, never returned, so the
// sequencer's view of the I/O stays infallible.
type RealIO struct {
	chip      *gpiocdev.Chip
	relays    [len(safeOrder)]*gpiocdev.Line
	activeLow [len(safeOrder)]bool
	led       *gpiocdev.Line
	button    *gpiocdev.Line
	log       zerolog.Logger
	errLimit  *rate.Limiter
}

// NewRealIO requests all lines. Outputs start inactive; the button is an
// input with pull-up.
func NewRealIO(lines Lines, log zerolog.Logger) (*RealIO, error) {
	if err := lines.Validate(); err != nil {
		return nil, err
	}

	chip, err := gpiocdev.NewChip(lines.Chip, gpiocdev.WithConsumer(DefaultConsumerName))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", lines.Chip, err)
	}

	r := &RealIO{
		chip:     chip,
		log:      log.With().Str("component", "gpio").Logger(),
		errLimit: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	for _, relay := range sequencer.Relays {
		offset := lines.Relay(relay)
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if relay == sequencer.RelaySpeaker && lines.SpeakerActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
			r.activeLow[relay] = true
		}
		l, err := chip.RequestLine(offset, opts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s relay line %d: %w", relay, offset, err)
		}
		r.relays[relay] = l
	}

	r.led, err = chip.RequestLine(lines.LED, gpiocdev.AsOutput(0))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request LED line %d: %w", lines.LED, err)
	}

	r.button, err = chip.RequestLine(lines.Button, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("request button line %d: %w", lines.Button, err)
	}

	return r, nil
}

// SetRelay drives a relay line. Active-low wiring is handled by the line
// configuration, so on is always the logical level.
func (r *RealIO) SetRelay(relay sequencer.Relay, on bool) {
	if int(relay) >= len(r.relays) || r.relays[relay] == nil {
		return
	}
	if err := r.relays[relay].SetValue(level(on)); err != nil {
		r.logErr(err, "set relay", relay.String())
	}
}

// SetLED drives the power LED.
func (r *RealIO) SetLED(on bool) {
	if r.led == nil {
		return
	}
	if err := r.led.SetValue(level(on)); err != nil {
		r.logErr(err, "set led", "led")
	}
}

// ReadButton returns the raw button level. A failed read reports the
// released level so that an I/O fault can never look like a press.
func (r *RealIO) ReadButton() bool {
	if r.button == nil {
		return true
	}
	v, err := r.button.Value()
	if err != nil {
		r.logErr(err, "read button", "button")
		return true
	}
	return v != 0
}

// Close drives every output inactive in safe order, parks the lines as
// inputs biased towards their inactive level, and releases the chip.
func (r *RealIO) Close() error {
	var errs []error

	for _, relay := range safeOrder {
		l := r.relays[relay]
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release %s relay: %w", relay, err))
		}
		bias := gpiocdev.WithPullDown
		if r.activeLow[relay] {
			bias = gpiocdev.WithPullUp
		}
		if err := l.Reconfigure(gpiocdev.AsInput, bias); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s relay: %w", relay, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s relay: %w", relay, err))
		}
		r.relays[relay] = nil
	}
	if r.led != nil {
		if err := r.led.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release led: %w", err))
		}
		if err := r.led.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close led: %w", err))
		}
		r.led = nil
	}
	if r.button != nil {
		if err := r.button.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button: %w", err))
		}
		r.button = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func (r *RealIO) logErr(err error, op, line string) {
	if !r.errLimit.Allow() {
		return
	}
	r.log.Error().Err(err).Str("op", op).Str("line", line).Msg("gpio error")
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
