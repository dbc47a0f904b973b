// Package app wires the tick scheduler daemon: config, logging, the bus
// writer, triggers, metrics and the debug server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tickbus/internal/audio"
	"tickbus/internal/config"
	"tickbus/internal/eventbus"
	"tickbus/internal/observability/metrics"
	"tickbus/internal/observability/pprof"
	"tickbus/internal/runtime/supervisor"
	"tickbus/internal/task/scheduler"
	"tickbus/internal/trigger"
	"tickbus/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log    logx.Logger
	logs   *logx.Service
	events eventbus.Bus
	mets   *metrics.Metrics

	sched    *scheduler.Service
	triggers *trigger.Runner
	pprof    *pprof.Service

	devMu  sync.Mutex
	device io.Closer // open bus device, nil when running dry
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))

	events := eventbus.New()
	mets := metrics.New()

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	seeker := audio.NewEventSeeker(events, log.With(logx.String("comp", "audio")))
	sched := scheduler.New(schedCfg, seeker, log.With(logx.String("comp", "scheduler")), events,
		scheduler.WithObserver(mets))

	runner := trigger.NewRunner(sched, cfg.Location(), log.With(logx.String("comp", "trigger")))
	specs, err := mapTriggers(cfg)
	if err != nil {
		return nil, err
	}
	if err := runner.Apply(specs); err != nil {
		return nil, err
	}

	ppc, err := mapPprof(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		events:   events,
		mets:     mets,
		sched:    sched,
		triggers: runner,
		pprof:    pprof.New(ppc, log.With(logx.String("comp", "pprof"))),
	}
	a.pprof.Handle("/status", a.statusHandler())
	a.pprof.Handle("/metrics", a.metricsHandler())
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate runs the cross-component checks before a reloaded config is
// committed.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	specs, err := mapTriggers(cfg)
	if err != nil {
		return err
	}
	if _, err := mapScheduler(cfg); err != nil {
		return err
	}
	if _, err := mapPprof(cfg); err != nil {
		return err
	}
	return a.triggers.Validate(specs)
}

// metricsHandler serves /metrics while pprof.metrics is on.
func (a *App) metricsHandler() http.Handler {
	h := a.mets.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfgm.Get().Pprof.Metrics {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	cfg := a.cfgm.Get()
	if err := a.bindWriter(cfg.Bus); err != nil {
		return err
	}

	a.triggers.Start()
	a.pprof.Start(a.sup.Context())

	events, unsub := a.events.Subscribe(128, "tick.", "audio.")
	a.sup.Go0("events.journal", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Int("triggers", len(cfg.Triggers)),
		logx.Bool("dry_run", cfg.Bus.Device == ""))
	return nil
}

// bindWriter opens the writer for bc and swaps it into the scheduler. The
// previous device is closed only after the swap.
func (a *App) bindWriter(bc config.BusConfig) error {
	w, closer, err := openWriter(bc, a.mets, a.events, a.log.With(logx.String("comp", "bus")))
	if err != nil {
		return err
	}
	a.sched.Init(w)

	a.devMu.Lock()
	prev := a.device
	a.device = closer
	a.devMu.Unlock()
	if prev != nil {
		if err := prev.Close(); err != nil {
			a.log.Warn("closing previous bus device failed", logx.Err(err))
		}
	}
	return nil
}

// applyConfig fans a committed config out to the live components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogging(newCfg))

	if sc, err := mapScheduler(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
	}

	if oldCfg != nil && oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone {
		a.log.Warn("scheduler.timezone changed; restart required for cron triggers to use it")
	}
	if specs, err := mapTriggers(newCfg); err != nil {
		a.log.Warn("invalid triggers; keeping previous", logx.Err(err))
	} else if err := a.triggers.Apply(specs); err != nil {
		a.log.Warn("triggers rejected; keeping previous", logx.Err(err))
	}

	if pc, err := mapPprof(newCfg); err != nil {
		a.log.Warn("invalid pprof config; keeping previous", logx.Err(err))
	} else {
		a.pprof.Reconfigure(ctx, pc)
	}

	if config.BusChanged(oldCfg, newCfg) {
		if err := a.bindWriter(newCfg.Bus); err != nil {
			a.log.Error("bus writer not replaced; keeping previous", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.Strings("changed", sections)}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop halts triggers and clears every schedule before unbinding the writer,
// so no handler runs against a closed device.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify(daemon.SdNotifyStopping)

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(stepCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("triggers", 2*time.Second, func(c context.Context) error { a.triggers.Stop(c); return nil })
	step("scheduler", time.Second, func(context.Context) error {
		a.sched.Close()
		a.sched.Shutdown()
		return nil
	})
	step("bus", time.Second, func(context.Context) error {
		a.devMu.Lock()
		dev := a.device
		a.device = nil
		a.devMu.Unlock()
		if dev != nil {
			return dev.Close()
		}
		return nil
	})
	step("pprof", time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Stop)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
