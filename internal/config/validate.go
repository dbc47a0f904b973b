package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"tickbus/pkg/logx"
)

// Validate checks field-level constraints. Cross-component checks (known
// task names, cron syntax) are done by the app before a config is committed.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	if c.Bus.PacketsPerSecond < 0 {
		add(errors.New("bus.packets_per_second must be >= 0"))
	}
	if c.Bus.Burst < 0 {
		add(errors.New("bus.burst must be >= 0"))
	}

	_, err := ParseDurationField("scheduler.handler_timeout", c.Scheduler.HandlerTimeout)
	add(err)
	if c.Scheduler.HistorySize < 0 {
		add(errors.New("scheduler.history_size must be >= 0"))
	}
	if c.Scheduler.MaxPending < 0 {
		add(errors.New("scheduler.max_pending must be >= 0"))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	for i, t := range c.Triggers {
		if strings.TrimSpace(t.Task) == "" {
			add(fmt.Errorf("triggers[%d].task required", i))
		}
		if strings.TrimSpace(t.When) == "" {
			add(fmt.Errorf("triggers[%d].when required", i))
		}
		_, err := ParseDurationField(fmt.Sprintf("triggers[%d].interval", i), t.Interval)
		add(err)
	}

	if c.Pprof.Enabled {
		if addr := strings.TrimSpace(c.Pprof.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("pprof.addr: %w", err))
			}
		}
		_, err := ParseDurationField("pprof.read_timeout", c.Pprof.ReadTimeout)
		add(err)
		_, err = ParseDurationField("pprof.idle_timeout", c.Pprof.IdleTimeout)
		add(err)
	}
	return errors.Join(errs...)
}

// Location resolves scheduler.timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
