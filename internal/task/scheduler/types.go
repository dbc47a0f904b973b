package scheduler

import (
	"time"

	"tickbus/internal/task/handler"
)

type Config struct {
	// HandlerTimeout bounds one handler invocation. Default 5s.
	HandlerTimeout time.Duration
	// HistorySize is the number of recent invocations kept for Snapshot. Default 200.
	HistorySize int
	// MaxPending caps live timers across all tasks; 0 means unlimited.
	// Arming past the cap fails the task with ErrRearm.
	MaxPending int
}

func (c Config) withDefaults() Config {
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 5 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.MaxPending < 0 {
		c.MaxPending = 0
	}
	return c
}

// Observer receives metrics hooks. All methods must be cheap and non-blocking.
type Observer interface {
	TickObserved(task string, d time.Duration, err error)
	RearmFailed(task string)
	ActiveTasks(n int)
}

type nopObserver struct{}

func (nopObserver) TickObserved(string, time.Duration, error) {}
func (nopObserver) RearmFailed(string)                        {}
func (nopObserver) ActiveTasks(int)                           {}

// timer is the part of *time.Timer the registry needs.
type timer interface {
	Stop() bool
}

// armFunc schedules f after d. Production uses time.AfterFunc.
type armFunc func(d time.Duration, f func()) (timer, error)

func afterFunc(d time.Duration, f func()) (timer, error) {
	return time.AfterFunc(d, f), nil
}

// entry is one task's schedule.
type entry struct {
	name      string
	kind      handler.Kind
	run       handler.Func
	interval  time.Duration
	remaining int    // 0 = forever; counts down without bound
	gen       uint64 // generation this entry belongs to
	timer     timer  // live handle of the next step, nil if none
	next      time.Time
	enabledAt time.Time
}

// TickEvent is the payload of tick.* events.
type TickEvent struct {
	RunID      string        `json:"run_id,omitempty"`
	Name       string        `json:"name"`
	Generation uint64        `json:"generation"`
	Interval   time.Duration `json:"interval,omitempty"`
	Remaining  int           `json:"remaining"`
	Started    time.Time     `json:"started,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type HistoryItem struct {
	RunID      string
	Name       string
	Generation uint64
	Started    time.Time
	Duration   time.Duration
	Error      string
}

type TaskInfo struct {
	Name       string
	Remaining  int
	Interval   time.Duration
	Generation uint64
	EnabledAt  time.Time
	Next       time.Time
}

type Snapshot struct {
	Tasks       []TaskInfo
	Pending     int
	MaxPending  int
	WriterBound bool
	History     []HistoryItem
}
