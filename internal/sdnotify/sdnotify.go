// Package sdnotify reports service state to systemd.
package sdnotify

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// Notifier sends sd_notify messages. Outside systemd (no NOTIFY_SOCKET)
// every call is a no-op.
type Notifier struct {
	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
	log      zerolog.Logger
}

// New returns a Notifier backed by the systemd notify socket.
func New(log zerolog.Logger) *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
		log:      log.With().Str("component", "sdnotify").Logger(),
	}
}

// Ready tells systemd startup has finished.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd the service is shutting down.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Ping resets the systemd watchdog timer.
func (n *Notifier) Ping() {
	n.send(daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns how often Ping should be called: half of the
// configured WatchdogSec. Zero means the watchdog is not enabled.
func (n *Notifier) WatchdogInterval() time.Duration {
	d, err := n.watchdog(false)
	if err != nil {
		n.log.Warn().Err(err).Msg("watchdog environment invalid")
		return 0
	}
	return d / 2
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn().Err(err).Str("state", state).Msg("notify failed")
		return
	}
	if sent {
		n.log.Debug().Str("state", state).Msg("notified")
	}
}
