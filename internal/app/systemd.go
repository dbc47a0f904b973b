package app

import (
	"context"
	"time"

	"tickbus/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

func (a *App) notify(state string) {
	if !a.cfgm.Get().Systemd.Notify {
		return
	}
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if ok {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured WatchdogSec. It returns at
// once when systemd.watchdog is off or the unit has no watchdog.
func (a *App) watchdog(ctx context.Context) {
	if !a.cfgm.Get().Systemd.Watchdog {
		return
	}
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("watchdog check failed", logx.Err(err))
		return
	}
	if every <= 0 {
		a.log.Debug("watchdog not enabled for this unit")
		return
	}
	every /= 2
	a.log.Info("watchdog enabled", logx.Duration("interval", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
