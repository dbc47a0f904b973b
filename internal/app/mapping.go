package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tickbus/internal/bus"
	"tickbus/internal/config"
	"tickbus/internal/eventbus"
	"tickbus/internal/observability/metrics"
	"tickbus/internal/observability/pprof"
	"tickbus/internal/task/scheduler"
	"tickbus/internal/trigger"
	"tickbus/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	timeout, err := config.ParseDurationOrDefault("scheduler.handler_timeout", cfg.Scheduler.HandlerTimeout, 5*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		HandlerTimeout: timeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		MaxPending:     cfg.Scheduler.MaxPending,
	}, nil
}

func mapTriggers(cfg *config.Config) ([]trigger.Spec, error) {
	out := make([]trigger.Spec, 0, len(cfg.Triggers))
	var errs []error
	for i, t := range cfg.Triggers {
		iv, err := config.ParseDurationField(fmt.Sprintf("triggers[%d].interval", i), t.Interval)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, trigger.Spec{
			Name:     strings.TrimSpace(t.Name),
			Task:     strings.TrimSpace(t.Task),
			When:     t.When,
			Interval: iv,
			Count:    t.Count,
		})
	}
	return out, errors.Join(errs...)
}

func mapPprof(cfg *config.Config) (pprof.Config, error) {
	rt, err := config.ParseDurationOrDefault("pprof.read_timeout", cfg.Pprof.ReadTimeout, 10*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("pprof.idle_timeout", cfg.Pprof.IdleTimeout, 60*time.Second)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Prefix:        cfg.Pprof.Prefix,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
		ReadTimeout:   rt,
		IdleTimeout:   it,
	}, nil
}

// openWriter builds the bus writer for cfg. The returned closer is nil for
// the dry-run writer.
func openWriter(cfg config.BusConfig, m *metrics.Metrics, events eventbus.Bus, log logx.Logger) (bus.Writer, io.Closer, error) {
	dev := strings.TrimSpace(cfg.Device)
	if dev == "" {
		log.Warn("bus.device not set; running dry, frames are logged only")
		return bus.LogWriter{Log: log}, nil, nil
	}
	f, err := os.OpenFile(dev, os.O_WRONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open bus device %q: %w", dev, err)
	}
	fw := bus.NewFrameWriter(f, bus.FrameOptions{
		PacketsPerSecond: cfg.PacketsPerSecond,
		Burst:            cfg.Burst,
		Events:           events,
		OnWrite:          m.BusPacket,
	}, log)
	return fw, f, nil
}
