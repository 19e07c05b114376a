//go:build !linux

package gpio

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/sweeney/amp-sequencer/internal/sequencer"
)

// RealIO is not available on non-Linux platforms.
type RealIO struct{}

// NewRealIO returns an error on non-Linux platforms.
func NewRealIO(lines Lines, log zerolog.Logger) (*RealIO, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// SetRelay is not implemented on non-Linux platforms.
func (r *RealIO) SetRelay(sequencer.Relay, bool) {}

// SetLED is not implemented on non-Linux platforms.
func (r *RealIO) SetLED(bool) {}

// ReadButton reports released on non-Linux platforms.
func (r *RealIO) ReadButton() bool { return true }

// Close is not implemented on non-Linux platforms.
func (r *RealIO) Close() error {
	return nil
}
