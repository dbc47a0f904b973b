package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
bus:
  packets_per_second: 20
  burst: 2
scheduler:
  handler_timeout: 2s
  max_pending: 16
  timezone: UTC
triggers:
  - name: announce
    task: pollResponse
    when: "every:30s"
    interval: 500ms
    count: 3
systemd:
  notify: true
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "tickbus.yaml", sampleYAML)
	m := NewManager(p)
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())

	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 20.0, cfg.Bus.PacketsPerSecond)
	require.Equal(t, 16, cfg.Scheduler.MaxPending)
	require.Equal(t, "UTC", cfg.Location().String())
	require.Len(t, cfg.Triggers, 1)
	require.Equal(t, TriggerConfig{Name: "announce", Task: "pollResponse", When: "every:30s", Interval: "500ms", Count: 3}, cfg.Triggers[0])
	require.True(t, cfg.Systemd.Notify)
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name, file, body string
	}{
		{"unknown json key", "a.json", `{"logging":{"level":"info"},"telegram":{}}`},
		{"unknown yaml key", "b.yaml", "scheduler:\n  workers: 3\n"},
		{"trailing data", "c.json", `{"logging":{}} {"logging":{}}`},
		{"bad level", "d.json", `{"logging":{"level":"loud"}}`},
		{"bad duration", "e.json", `{"scheduler":{"handler_timeout":"soon"}}`},
		{"bad timezone", "f.json", `{"scheduler":{"timezone":"Mars/Olympus"}}`},
	}
	for _, tt := range tests {
		p := writeFile(t, dir, tt.file, tt.body)
		if _, err := NewManager(p).Parse(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Config{
		Bus:       BusConfig{PacketsPerSecond: -1},
		Scheduler: SchedulerConfig{MaxPending: -1},
		Triggers:  []TriggerConfig{{Name: "x", Interval: "-1s"}},
		Pprof:     PprofConfig{Enabled: true, Addr: "no-port"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"bus.packets_per_second", "scheduler.max_pending",
		"triggers[0].task required", "triggers[0].when required", "triggers[0].interval",
		"pprof.addr",
	} {
		require.Contains(t, err.Error(), want)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationOrDefault("x", "-1s", 5*time.Second)
	require.Error(t, err)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tickbus.json", `{"logging":{"level":"info"}}`)
	m := NewManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Scheduler.MaxPending == 13 {
			return errors.New("unlucky")
		}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "tickbus.json", `{"logging":{"level":"info"},"scheduler":{"max_pending":13}}`)
	select {
	case cfg := <-ch:
		t.Fatalf("rejected config was published: %+v", cfg)
	case <-time.After(600 * time.Millisecond):
	}
	require.Zero(t, m.Get().Scheduler.MaxPending)

	writeFile(t, dir, "tickbus.json", `{"logging":{"level":"warn"}}`)
	select {
	case cfg := <-ch:
		require.Equal(t, "warn", cfg.Logging.Level)
		require.Same(t, cfg, m.Get())
	case <-time.After(3 * time.Second):
		t.Fatal("expected reloaded config")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	require.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}

func TestSummarizeChangeHidesToken(t *testing.T) {
	oldCfg := &Config{Pprof: PprofConfig{Enabled: true, Token: "secret-a"}}
	newCfg := &Config{Pprof: PprofConfig{Enabled: true, Token: "secret-b"}, Logging: LoggingConfig{Level: "debug"}}

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	require.Equal(t, []string{"logging", "pprof"}, changed)
	require.NotEmpty(t, attrs)
	require.False(t, BusChanged(oldCfg, newCfg))
	require.True(t, BusChanged(oldCfg, &Config{Bus: BusConfig{Device: "/dev/ttyUSB0"}}))
}
