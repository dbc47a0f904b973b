package config

// Config is the daemon configuration. Files may be JSON or YAML; unknown
// keys are rejected in both.
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Bus       BusConfig       `json:"bus"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Triggers  []TriggerConfig `json:"triggers,omitempty"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
	Systemd   SystemdConfig   `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// BusConfig selects where packets go.
//
// With an empty device the daemon runs dry: frames are validated and logged
// instead of written.
type BusConfig struct {
	Device string `json:"device,omitempty"` // e.g. "/dev/ttyUSB0"
	// PacketsPerSecond paces frames on the line; 0 disables pacing.
	PacketsPerSecond float64 `json:"packets_per_second,omitempty"`
	Burst            int     `json:"burst,omitempty"`
}

// SchedulerConfig controls tick execution.
//
// Defaults:
//   - handler_timeout: "5s"
//   - history_size: 200
//   - max_pending: 0 (unlimited)
//   - timezone: local (used by cron triggers)
type SchedulerConfig struct {
	HandlerTimeout string `json:"handler_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	MaxPending     int    `json:"max_pending,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// TriggerConfig enables a task when `when` comes due.
//
// Example:
//
//	{ "name": "announce", "task": "pollResponse", "when": "every:30s", "interval": "500ms", "count": 3 }
type TriggerConfig struct {
	Name     string `json:"name"`
	Task     string `json:"task"`
	When     string `json:"when"`
	Interval string `json:"interval,omitempty"`
	Count    int    `json:"count"`
}

// PprofConfig controls the optional debug HTTP server (pprof and /metrics).
//
// Prefer a loopback address. A non-loopback address needs a token or
// allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // bearer token; never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"` // serve /metrics on the same listener

	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

// SystemdConfig controls sd_notify integration. Both are no-ops when not
// running under systemd.
type SystemdConfig struct {
	Notify   bool `json:"notify"`
	Watchdog bool `json:"watchdog"`
}
