package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"tickbus/pkg/logx"

	"github.com/stretchr/testify/require"
)

func TestParseWhen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		cron  string
		every time.Duration
	}{
		{raw: "*/5 * * * *", cron: "*/5 * * * *"},
		{raw: "cron:0 7 * * 1-5", cron: "0 7 * * 1-5"},
		{raw: "@hourly", cron: "@hourly"},
		{raw: "30s", every: 30 * time.Second},
		{raw: "every:1m", every: time.Minute},
		{raw: "interval: 2h30m", every: 150 * time.Minute},
		{raw: "00:05", every: 5 * time.Minute},
		{raw: "every:01:30", every: 90 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseWhen(tt.raw)
		if err != nil {
			t.Fatalf("ParseWhen(%q) error: %v", tt.raw, err)
		}
		if got.Cron != tt.cron || got.Every != tt.every {
			t.Fatalf("ParseWhen(%q) = %+v", tt.raw, got)
		}
	}
}

func TestParseWhenInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "cron:", "00:75", "500ms", "every:-1m"} {
		if _, err := ParseWhen(raw); err == nil {
			t.Errorf("ParseWhen(%q) expected error", raw)
		}
	}
}

type recordingEnabler struct {
	mu    sync.Mutex
	calls []Spec
}

func (e *recordingEnabler) Enable(name string, interval time.Duration, count int) error {
	e.mu.Lock()
	e.calls = append(e.calls, Spec{Task: name, Interval: interval, Count: count})
	e.mu.Unlock()
	return nil
}

func (e *recordingEnabler) n() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func TestValidate(t *testing.T) {
	r := NewRunner(&recordingEnabler{}, time.UTC, logx.Nop())

	require.NoError(t, r.Validate([]Spec{
		{Name: "poll", Task: "pollResponse", When: "every:1m", Interval: 500 * time.Millisecond, Count: 3},
		{Name: "once", Task: "scanForward", When: "@daily", Count: 1},
	}))

	err := r.Validate([]Spec{
		{Name: "a", Task: "nope", When: "1m", Interval: time.Second},
		{Name: "a", Task: "scanForward", When: "bad when", Interval: time.Second},
		{Name: "", Task: "scanBackward", When: "1m", Count: -1},
	})
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, `unknown task "nope"`)
	require.Contains(t, msg, `duplicate name "a"`)
	require.Contains(t, msg, "triggers[1]")
	require.Contains(t, msg, "name required")
	require.Contains(t, msg, "count must be >= 0")
}

func TestRunnerFiresEnable(t *testing.T) {
	target := &recordingEnabler{}
	r := NewRunner(target, time.UTC, logx.Nop())
	require.NoError(t, r.Apply([]Spec{
		{Name: "poll", Task: "pollResponse", When: "every:1s", Interval: 500 * time.Millisecond, Count: 3},
	}))
	r.Start()
	defer r.Stop(context.Background())

	entries := r.Entries()
	require.Len(t, entries, 1)
	require.False(t, entries[0].Next.IsZero())

	deadline := time.Now().Add(3 * time.Second)
	for target.n() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.NotZero(t, target.n())
	target.mu.Lock()
	require.Equal(t, Spec{Task: "pollResponse", Interval: 500 * time.Millisecond, Count: 3}, target.calls[0])
	target.mu.Unlock()
}

func TestApplyInvalidKeepsPreviousSet(t *testing.T) {
	r := NewRunner(&recordingEnabler{}, time.UTC, logx.Nop())
	require.NoError(t, r.Apply([]Spec{{Name: "a", Task: "scanForward", When: "@hourly", Count: 1}}))
	r.Start()
	defer r.Stop(context.Background())

	require.Error(t, r.Apply([]Spec{{Name: "b", Task: "unknown", When: "@hourly", Count: 1}}))
	require.Equal(t, "a", r.Entries()[0].Name)

	require.NoError(t, r.Apply([]Spec{{Name: "b", Task: "scanBackward", When: "@hourly", Count: 1}}))
	got := r.Entries()
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].Name)
	require.False(t, got[0].Next.IsZero())
}
