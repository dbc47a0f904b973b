package scheduler

import "errors"

var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrInvalidCount    = errors.New("count must be >= 0")
	ErrInvalidInterval = errors.New("interval must be > 0 for repeating tasks")
	// ErrRearm ends a task's recurrence: the next tick could not be armed.
	ErrRearm   = errors.New("rearm failed")
	ErrStopped = errors.New("scheduler stopped")
)
