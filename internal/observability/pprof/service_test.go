package pprof

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tickbus/pkg/logx"

	"github.com/stretchr/testify/require"
)

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":            "/debug/pprof/",
		"dbg":         "/dbg/",
		"/dbg":        "/dbg/",
		" /x/pprof/ ": "/x/pprof/",
	} {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	require.True(t, isLoopbackAddr("127.0.0.1:6060"))
	require.True(t, isLoopbackAddr("localhost:1"))
	require.True(t, isLoopbackAddr("[::1]:6060"))
	require.False(t, isLoopbackAddr(":6060"))
	require.False(t, isLoopbackAddr("0.0.0.0:6060"))
	require.False(t, isLoopbackAddr("nonsense"))
}

func TestMuxAuthAndExtraRoutes(t *testing.T) {
	status := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("status")) })
	mux := buildMux(Config{Token: "s3cret"}, map[string]http.Handler{"/status": status})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/status", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "status", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/debug/pprof/?token=s3cret", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartServesHealthz(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr())

	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(body))
}

func TestReconfigureDisableStops(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.Reconfigure(context.Background(), Config{Enabled: true, Addr: "127.0.0.1:0"})
	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr())

	s.Reconfigure(context.Background(), Config{Enabled: false})
	require.Empty(t, s.Addr())
}
