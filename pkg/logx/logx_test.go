package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	// Must not panic.
	l.Info("nothing", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("derived logger with fields should not be zero")
	}
}

func TestWithFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).With(String("comp", "scheduler"))
	l.Warn("tick failed", String("task", "pollResponse"), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "scheduler", m["comp"])
	require.Equal(t, "pollResponse", m["task"])
	require.Equal(t, "tick failed", m["message"])
	require.Equal(t, "warn", m["level"])
	require.Contains(t, m, "caller")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if !ValidLevel("trace") || !ValidLevel("") || ValidLevel("loud") {
		t.Fatal("ValidLevel mismatch")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickbus.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	log.Debug("hello", Int("n", 3))
	require.True(t, log.Enabled(LevelDebug))

	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	require.False(t, log.Enabled(LevelDebug))
	log.Info("dropped")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"message":"hello"`)
	require.NotContains(t, string(b), "dropped")
}
