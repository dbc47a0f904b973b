package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tickbus/internal/config"

	"github.com/stretchr/testify/require"
)

const baseYAML = `
logging:
  level: error
  console: true
scheduler:
  handler_timeout: 1s
  history_size: 50
triggers:
  - name: announce
    task: pollResponse
    when: every:1h
    interval: 10ms
    count: 2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tickbus.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func startApp(t *testing.T, body string) *App {
	t.Helper()
	a, err := NewApp(writeConfig(t, body))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopUnknown)
	})
	return a
}

func TestNewAppRejectsUnknownTriggerTask(t *testing.T) {
	_, err := NewApp(writeConfig(t, `
triggers:
  - name: bad
    task: rewind
    when: every:1m
    count: 1
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown task")
}

func TestDryRunPollResponse(t *testing.T) {
	a := startApp(t, baseYAML)
	require.True(t, a.Scheduler().Snapshot().WriterBound)

	require.NoError(t, a.Scheduler().Enable("pollResponse", 10*time.Millisecond, 2))
	require.Eventually(t, func() bool {
		return len(a.Scheduler().Snapshot().History) == 2
	}, 2*time.Second, 5*time.Millisecond)
	for _, h := range a.Scheduler().Snapshot().History {
		require.Empty(t, h.Error)
	}
	require.False(t, a.Scheduler().Has("pollResponse"))
}

func TestApplyConfigReplacesTriggers(t *testing.T) {
	a := startApp(t, baseYAML)
	oldCfg := a.cfgm.Get()

	next := *oldCfg
	next.Triggers = []config.TriggerConfig{
		{Name: "seek", Task: "scanForward", When: "cron:0 * * * *", Interval: "1s", Count: 3},
	}
	a.applyConfig(context.Background(), oldCfg, &next)

	entries := a.triggers.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "seek", entries[0].Name)
	require.False(t, entries[0].Next.IsZero())
}

func TestValidateRejectsBadTrigger(t *testing.T) {
	a, err := NewApp(writeConfig(t, baseYAML))
	require.NoError(t, err)

	bad := *a.cfgm.Get()
	bad.Triggers = []config.TriggerConfig{{Name: "x", Task: "pollResponse", When: "every:1m", Count: 0}}
	require.Error(t, a.validate(context.Background(), &bad))
}

func TestStatusHandler(t *testing.T) {
	a := startApp(t, baseYAML)
	require.NoError(t, a.Scheduler().Enable("scanForward", time.Hour, 0))

	rec := httptest.NewRecorder()
	a.statusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, 200, rec.Code)

	var st status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Scheduler.Tasks, 1)
	require.Equal(t, "scanForward", st.Scheduler.Tasks[0].Name)
	require.Len(t, st.Triggers, 1)
}

func TestMetricsHandlerFollowsConfig(t *testing.T) {
	a, err := NewApp(writeConfig(t, baseYAML))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.metricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 404, rec.Code)

	on := *a.cfgm.Get()
	on.Pprof.Metrics = true
	a.cfgm.Commit(&on)

	rec = httptest.NewRecorder()
	a.metricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStopClearsSchedulesAndWriter(t *testing.T) {
	a, err := NewApp(writeConfig(t, baseYAML))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Scheduler().Enable("scanBackward", time.Hour, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))

	snap := a.Scheduler().Snapshot()
	require.Empty(t, snap.Tasks)
	require.False(t, snap.WriterBound)
	select {
	case <-a.Done():
	default:
		t.Fatal("app context should be cancelled after Stop")
	}
}
