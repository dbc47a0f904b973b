package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tickbus/internal/audio"
	"tickbus/internal/bus"
	"tickbus/internal/eventbus"
	"tickbus/internal/task/handler"
	"tickbus/pkg/logx"
)

// Service owns the task registry. It is safe for concurrent use; Enable and
// Disable may be called from any goroutine, including the bus read loop.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
	gen     uint64
	pending int // live timers
	closed  bool

	// One lane per task kind: steps of the same task never overlap.
	lanes map[handler.Kind]*sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	obs    Observer
	writer *bus.Binding
	deps   handler.Deps
	arm    armFunc

	ctx    context.Context
	cancel context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.obs = o
		}
	}
}

// New creates an empty scheduler. Handlers that write to the bus go through
// the scheduler's own writer binding, set with Init.
func New(cfg Config, seeker audio.Seeker, log logx.Logger, events eventbus.Bus, opts ...Option) *Service {
	if events == nil {
		events = eventbus.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg.withDefaults(),
		entries: map[string]*entry{},
		lanes:   map[handler.Kind]*sync.Mutex{},
		log:     log,
		bus:     events,
		obs:     nopObserver{},
		writer:  bus.NewBinding(log),
		arm:     afterFunc,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.deps = handler.Deps{Bus: s.writer, Audio: seeker}
	for _, n := range handler.Names() {
		k, _ := handler.Lookup(n)
		s.lanes[k] = &sync.Mutex{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init binds the bus writer used by handlers. Calling it again swaps writers.
func (s *Service) Init(w bus.Writer) { s.writer.Bind(w) }

// Shutdown clears the bus writer binding. Schedules keep running; handlers
// that write to the bus fail with bus.ErrNoWriterBound until Init is called.
func (s *Service) Shutdown() { s.writer.Unbind() }

// Apply updates runtime settings. Existing timers keep their interval.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.hmu.Lock()
	if len(s.history) > cfg.HistorySize {
		s.history = append([]HistoryItem(nil), s.history[len(s.history)-cfg.HistorySize:]...)
	}
	s.hmu.Unlock()
}

// Enable (re)starts the schedule for name: any previous generation is
// invalidated, the first tick runs synchronously on the caller's goroutine
// and the rest follow every interval.
//
// count is the number of invocations; 0 repeats until disabled.
func (s *Service) Enable(name string, interval time.Duration, count int) error {
	if count < 0 {
		return fmt.Errorf("enable %q: %w (got %d)", name, ErrInvalidCount, count)
	}
	kind, ok := handler.Lookup(name)
	if !ok {
		s.log.Warn("no handler for task", logx.String("task", name))
		s.bus.Publish(eventbus.Event{Type: "tick.unknown", Data: TickEvent{Name: name}})
		return fmt.Errorf("enable %q: %w", name, ErrUnknownTask)
	}
	if interval <= 0 && count != 1 {
		return fmt.Errorf("enable %q: %w (got %s)", name, ErrInvalidInterval, interval)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	s.gen++
	e := &entry{
		name:      name,
		kind:      kind,
		run:       kind.Bind(s.deps),
		interval:  interval,
		remaining: count,
		gen:       s.gen,
		enabledAt: time.Now(),
	}
	replaced := false
	if old, ok := s.entries[name]; ok {
		s.dropLocked(old)
		replaced = true
	}
	s.entries[name] = e
	active := len(s.entries)
	s.mu.Unlock()

	s.obs.ActiveTasks(active)
	s.log.Info("task enabled",
		logx.String("task", name),
		logx.Duration("interval", interval),
		logx.Int("count", count),
		logx.Uint64("gen", e.gen),
		logx.Bool("replaced", replaced))
	s.bus.Publish(eventbus.Event{Type: "tick.enabled", Data: TickEvent{Name: name, Generation: e.gen, Interval: interval, Remaining: count}})

	s.step(name, kind, e.gen)
	return nil
}

// Disable cancels name's schedule. Unknown or already disabled names are a no-op.
// A tick already running when Disable is called finishes; none start afterwards.
func (s *Service) Disable(name string) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if ok {
		s.dropLocked(e)
	}
	active := len(s.entries)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.obs.ActiveTasks(active)
	s.log.Info("task disabled", logx.String("task", name), logx.Uint64("gen", e.gen))
	s.bus.Publish(eventbus.Event{Type: "tick.disabled", Data: TickEvent{Name: name, Generation: e.gen}})
}

// DisableAll cancels every schedule and clears the registry.
func (s *Service) DisableAll() {
	s.mu.Lock()
	names := s.clearLocked()
	s.mu.Unlock()
	if len(names) == 0 {
		return
	}

	s.obs.ActiveTasks(0)
	s.log.Info("all tasks disabled", logx.Strings("tasks", names))
	for _, n := range names {
		s.bus.Publish(eventbus.Event{Type: "tick.disabled", Data: TickEvent{Name: n}})
	}
}

// Close disables everything, cancels running handlers and rejects later
// Enable calls with ErrStopped.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	names := s.clearLocked()
	s.mu.Unlock()

	s.cancel()
	s.obs.ActiveTasks(0)
	s.log.Info("scheduler closed", logx.Int("cancelled", len(names)))
}

// Has reports whether name currently has a schedule.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	s.mu.Unlock()
	return ok
}

// Len is the number of scheduled tasks.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Service) clearLocked() []string {
	names := make([]string, 0, len(s.entries))
	for name, e := range s.entries {
		s.dropLocked(e)
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
