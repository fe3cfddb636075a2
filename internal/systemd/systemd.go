// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd enables applications to signal readiness and update watchdog
// timestamp to systemd.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.astrophena.name/scriptbot/internal/logger"
)

// State defines a sd-notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is
	// finished, or the service finished loading its configuration.
	Ready State = "READY=1"

	// Watchdog tells the service manager to update the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"

	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"
)

// Notifier sends sd_notify messages to the socket named by the NOTIFY_SOCKET
// environment variable.
type Notifier struct {
	// Getenv looks up environment variables. Usually it's cli.Env.Getenv.
	Getenv func(string) string
}

// Enabled reports whether the process runs under systemd with notifications
// enabled.
func (n *Notifier) Enabled() bool { return n.Getenv("NOTIFY_SOCKET") != "" }

// Notify sends state to systemd. It does nothing if notifications are disabled.
// Errors are logged to the logger from ctx.
func (n *Notifier) Notify(ctx context.Context, state State) {
	if !n.Enabled() {
		return
	}
	if err := n.send(state); err != nil {
		logger.Get(ctx).Warn("systemd: failed to notify", "state", string(state), "err", err)
	}
}

func (n *Notifier) send(state State) error {
	addr := &net.UnixAddr{
		Net:  "unixgram",
		Name: n.Getenv("NOTIFY_SOCKET"),
	}
	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write([]byte(state))
	return err
}

// WatchdogLoop updates the watchdog timestamp twice per interval requested in
// WATCHDOG_USEC until ctx is canceled. It returns immediately if the watchdog
// is disabled.
func (n *Notifier) WatchdogLoop(ctx context.Context) {
	if !n.Enabled() || n.Getenv("WATCHDOG_USEC") == "" {
		return
	}

	interval, err := watchdogInterval(n.Getenv("WATCHDOG_USEC"))
	if err != nil {
		logger.Get(ctx).Warn("systemd: watchdog disabled", "err", err)
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.Notify(ctx, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func watchdogInterval(usec string) (time.Duration, error) {
	s, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("parsing WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(s) * time.Microsecond, nil
}
