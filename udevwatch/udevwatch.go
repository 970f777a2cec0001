// Package udevwatch implements the optional hot-plug notifier: it
// watches udev "input" subsystem events and nudges a proxy.Manager's
// retry loop immediately on a device add, instead of waiting out the
// Manager's fixed retry cadence. It is never required: a Manager works
// identically, on its fixed cadence alone, if no Watcher is started.
package udevwatch

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

const inputSubsystem = "input"

// waker is the narrow surface Watcher needs from a proxy.Manager: a way
// to nudge its retry loop. Satisfied by *proxy.Manager.
type waker interface {
	Wake()
}

// deviceEvent is the narrow surface Watcher needs from a udev device
// event.
type deviceEvent interface {
	Action() string
	Syspath() string
}

// openMonitor is overridden in tests to avoid opening a real netlink
// socket. It adapts the real go-udev monitor's *device.Device channel
// into a channel of the narrower deviceEvent interface.
var openMonitor = func(ctx context.Context) (<-chan deviceEvent, error) {
	u := udev.Udev{}

	monitor := u.NewMonitorFromNetlink("udev")

	if err := monitor.FilterAddMatchSubsystem(inputSubsystem); err != nil {
		return nil, fmt.Errorf("udevwatch.openMonitor: %w", err)
	}

	raw, err := monitor.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("udevwatch.openMonitor: %w", err)
	}

	out := make(chan deviceEvent)

	go func() {
		defer close(out)

		for dev := range raw {
			select {
			case out <- dev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Watcher monitors udev "add" events on the input subsystem and calls
// Wake on the configured waker for each one.
type Watcher struct {
	// Logger receives structured diagnostics. A nil Logger falls back to
	// log.Default().
	Logger *log.Logger

	waker waker
}

// New constructs a Watcher that nudges mgr on every input-subsystem
// device add.
func New(mgr waker) *Watcher {
	return &Watcher{waker: mgr}
}

func (w *Watcher) logger() *log.Logger {
	if w.Logger != nil {
		return w.Logger
	}

	return log.Default()
}

// Run opens a udev netlink monitor filtered to the input subsystem and
// calls Wake on every "add" event until ctx is cancelled or the device
// channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	devices, err := openMonitor(ctx)
	if err != nil {
		return fmt.Errorf("udevwatch.Run: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case dev, ok := <-devices:
			if !ok {
				return nil
			}

			if dev.Action() != "add" {
				continue
			}

			w.logger().Debug("input device added", "syspath", dev.Syspath())
			w.waker.Wake()
		}
	}
}
