// Package trigger starts scheduler tasks from config: each trigger calls
// Enable for its task whenever its cron expression or period comes due.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tickbus/internal/task/handler"
	"tickbus/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Enabler is the scheduler operation a trigger drives.
type Enabler interface {
	Enable(name string, interval time.Duration, count int) error
}

// Spec is one configured trigger.
type Spec struct {
	Name     string
	Task     string
	When     string
	Interval time.Duration
	Count    int
}

type EntryInfo struct {
	Name string
	Task string
	When string
	Next time.Time
	Prev time.Time
}

type Runner struct {
	mu     sync.Mutex
	log    logx.Logger
	target Enabler
	parser cron.Parser
	loc    *time.Location

	c       *cron.Cron
	specs   []Spec
	entries map[string]cron.EntryID
}

func NewRunner(target Enabler, loc *time.Location, log logx.Logger) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		log:    log,
		target: target,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:     loc,
		entries: map[string]cron.EntryID{},
	}
}

// Validate checks specs without touching the running schedule.
func (r *Runner) Validate(specs []Spec) error {
	var errs []error
	seen := map[string]bool{}
	for i, sp := range specs {
		name := strings.TrimSpace(sp.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("triggers[%d]: name required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("triggers[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if _, ok := handler.Lookup(sp.Task); !ok {
			errs = append(errs, fmt.Errorf("triggers[%d]: unknown task %q (known: %s)", i, sp.Task, strings.Join(handler.Names(), ", ")))
		}
		if sp.Count < 0 {
			errs = append(errs, fmt.Errorf("triggers[%d]: count must be >= 0", i))
		}
		if sp.Interval <= 0 && sp.Count != 1 {
			errs = append(errs, fmt.Errorf("triggers[%d]: interval must be > 0 unless count is 1", i))
		}
		if _, err := r.schedule(sp.When); err != nil {
			errs = append(errs, fmt.Errorf("triggers[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) schedule(raw string) (cron.Schedule, error) {
	w, err := ParseWhen(raw)
	if err != nil {
		return nil, err
	}
	if w.Every > 0 {
		return cron.Every(w.Every), nil
	}
	return r.parser.Parse(w.Cron)
}

// Apply replaces the trigger set. Invalid input leaves the old set running.
func (r *Runner) Apply(specs []Spec) error {
	if err := r.Validate(specs); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append([]Spec(nil), specs...)
	if r.c != nil {
		r.registerLocked()
	}
	return nil
}

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	r.c = cron.New(
		cron.WithParser(r.parser),
		cron.WithLocation(r.loc),
		cron.WithChain(cron.Recover(cronLogger{r.log}), cron.SkipIfStillRunning(cronLogger{r.log})),
	)
	r.registerLocked()
	r.c.Start()
	r.log.Info("triggers started", logx.Int("count", len(r.specs)), logx.String("tz", r.loc.String()))
}

// Stop halts triggering and waits for a running Enable to return, or ctx.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.entries = map[string]cron.EntryID{}
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Info("triggers stopped")
}

func (r *Runner) registerLocked() {
	for name, id := range r.entries {
		r.c.Remove(id)
		delete(r.entries, name)
	}
	for _, sp := range r.specs {
		sched, err := r.schedule(sp.When)
		if err != nil {
			// Validated in Apply; only reachable if parsing is not deterministic.
			r.log.Error("trigger skipped", logx.String("trigger", sp.Name), logx.Err(err))
			continue
		}
		r.entries[sp.Name] = r.c.Schedule(sched, r.job(sp))
		r.log.Debug("trigger registered",
			logx.String("trigger", sp.Name),
			logx.String("task", sp.Task),
			logx.String("when", sp.When),
			logx.Time("next", sched.Next(time.Now().In(r.loc))))
	}
}

func (r *Runner) job(sp Spec) cron.Job {
	return cron.FuncJob(func() {
		if err := r.target.Enable(sp.Task, sp.Interval, sp.Count); err != nil {
			r.log.Warn("trigger failed", logx.String("trigger", sp.Name), logx.String("task", sp.Task), logx.Err(err))
			return
		}
		r.log.Debug("trigger fired", logx.String("trigger", sp.Name), logx.String("task", sp.Task))
	})
}

// Entries lists registered triggers with their next fire time.
func (r *Runner) Entries() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EntryInfo, 0, len(r.specs))
	for _, sp := range r.specs {
		it := EntryInfo{Name: sp.Name, Task: sp.Task, When: sp.When}
		if id, ok := r.entries[sp.Name]; ok && r.c != nil {
			e := r.c.Entry(id)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
