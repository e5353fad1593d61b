// Package systemd reports service readiness, status and watchdog pings to
// systemd. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/framelink/internal/events"
)

// Notifier sends sd_notify messages.
type Notifier struct {
	logger   *slog.Logger
	notify   func(state string) (bool, error)
	watchdog func() (time.Duration, error)
}

// NewNotifier creates a notifier using $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		watchdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify", "state", state)
	}
}

// Ready tells systemd startup finished.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the one-line status shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// FollowSession mirrors session transitions and terminations into the
// service status. The returned function unsubscribes.
func (n *Notifier) FollowSession(bus *events.Bus) func() {
	unsubState := bus.Subscribe(func(e events.SessionStateChangedEvent) {
		n.Status("session " + e.To)
	})
	unsubTerm := bus.Subscribe(func(e events.SessionTerminatedEvent) {
		n.Status(fmt.Sprintf("session ended: %s: %s", e.Kind, e.Message))
	})
	return func() {
		unsubState()
		unsubTerm()
	}
}

// RunWatchdog pings the watchdog at half its interval until ctx ends. It
// returns at once when the unit has no WatchdogSec.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdog()
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
