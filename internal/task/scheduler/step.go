package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tickbus/internal/eventbus"
	"tickbus/internal/task/handler"
	"tickbus/pkg/logx"

	"github.com/google/uuid"
)

// step is one tick of generation gen of task name.
//
// Order matters:
//  1. the registry must still hold gen, otherwise the step is stale;
//  2. the next step is armed (or the entry removed on the last tick)
//     before the handler runs;
//  3. the handler runs outside the registry lock.
//
// The kind's lane is held for the whole step.
func (s *Service) step(name string, kind handler.Kind, gen uint64) {
	lane := s.lanes[kind]
	lane.Lock()
	defer lane.Unlock()

	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	last := e.remaining == 1
	var rearmErr error
	if last {
		s.dropLocked(e)
	} else {
		e.remaining--
		if rearmErr = s.rearmLocked(e); rearmErr != nil {
			s.dropLocked(e)
		}
	}
	left := e.remaining
	if last {
		left = 0
	}
	run := e.run
	active := len(s.entries)
	timeout := s.cfg.HandlerTimeout
	s.mu.Unlock()

	if last || rearmErr != nil {
		s.obs.ActiveTasks(active)
	}
	if rearmErr != nil {
		s.obs.RearmFailed(name)
		s.log.Error("task recurrence ended", logx.String("task", name), logx.Uint64("gen", gen), logx.Err(rearmErr))
		s.bus.Publish(eventbus.Event{Type: "tick.rearm_failed", Data: TickEvent{Name: name, Generation: gen, Error: rearmErr.Error()}})
	}

	s.invoke(name, gen, left, timeout, run)

	if last {
		s.log.Debug("task completed", logx.String("task", name), logx.Uint64("gen", gen))
		s.bus.Publish(eventbus.Event{Type: "tick.completed", Data: TickEvent{Name: name, Generation: gen}})
	}
}

// rearmLocked arms e's next step interval from now.
func (s *Service) rearmLocked(e *entry) error {
	// A fired timer is replaced in place; only a first arm adds a live timer.
	if e.timer == nil && s.cfg.MaxPending > 0 && s.pending >= s.cfg.MaxPending {
		return fmt.Errorf("%w: %d timers pending (max %d)", ErrRearm, s.pending, s.cfg.MaxPending)
	}
	name, kind, gen := e.name, e.kind, e.gen
	t, err := s.arm(e.interval, func() { s.step(name, kind, gen) })
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRearm, err)
	}
	if e.timer == nil {
		s.pending++
	}
	e.timer = t
	e.next = time.Now().Add(e.interval)
	return nil
}

// dropLocked stops e's timer and removes e if it is still the current entry.
func (s *Service) dropLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		s.pending--
	}
	if cur, ok := s.entries[e.name]; ok && cur == e {
		delete(s.entries, e.name)
	}
}

func (s *Service) invoke(name string, gen uint64, remaining int, timeout time.Duration, run handler.Func) {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	ev := TickEvent{RunID: uuid.NewString(), Name: name, Generation: gen, Remaining: remaining, Started: time.Now()}
	err := s.safeRun(ctx, name, run)
	ev.Duration = time.Since(ev.Started)
	s.obs.TickObserved(name, ev.Duration, err)

	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("tick failed", logx.String("task", name), logx.String("run_id", ev.RunID), logx.Duration("took", ev.Duration), logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: "tick.failed", Data: ev})
	} else {
		s.bus.Publish(eventbus.Event{Type: "tick.fired", Data: ev})
	}
	s.record(HistoryItem{RunID: ev.RunID, Name: name, Generation: gen, Started: ev.Started, Duration: ev.Duration, Error: ev.Error})
}

func (s *Service) safeRun(ctx context.Context, name string, run handler.Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick handler panicked", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return run(ctx)
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
