package config

import (
	"reflect"
	"strings"

	"tickbus/pkg/logx"
)

// SummarizeChange lists the top-level sections that differ and a few safe
// fields for the reload log line. Secrets (pprof.token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled))
	}
	if oldCfg.Bus != newCfg.Bus {
		changed = append(changed, "bus")
		attrs = append(attrs,
			logx.String("bus.device", strings.TrimSpace(newCfg.Bus.Device)),
			logx.Any("bus.packets_per_second", newCfg.Bus.PacketsPerSecond))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.handler_timeout", newCfg.Scheduler.HandlerTimeout),
			logx.Int("scheduler.max_pending", newCfg.Scheduler.MaxPending))
	}
	if !reflect.DeepEqual(oldCfg.Triggers, newCfg.Triggers) {
		changed = append(changed, "triggers")
		attrs = append(attrs, logx.Int("triggers.count", len(newCfg.Triggers)))
	}
	op, np := oldCfg.Pprof, newCfg.Pprof
	op.Token, np.Token = "", ""
	if op != np || oldCfg.Pprof.Token != newCfg.Pprof.Token {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", np.Addr),
			logx.Bool("pprof.token_set", newCfg.Pprof.Token != ""))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
	}
	return changed, attrs
}

// BusChanged reports whether a reload needs to reopen the bus writer.
func BusChanged(oldCfg, newCfg *Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return oldCfg.Bus != newCfg.Bus
}
