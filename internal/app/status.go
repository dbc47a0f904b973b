package app

import (
	"encoding/json"
	"net/http"
	"time"

	"tickbus/internal/task/scheduler"
	"tickbus/internal/trigger"
)

type status struct {
	Now       time.Time           `json:"now"`
	Scheduler scheduler.Snapshot  `json:"scheduler"`
	Triggers  []trigger.EntryInfo `json:"triggers"`
}

// statusHandler serves the scheduler snapshot and trigger schedule as JSON.
func (a *App) statusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := status{
			Now:       time.Now(),
			Scheduler: a.sched.Snapshot(),
			Triggers:  a.triggers.Entries(),
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
	})
}
