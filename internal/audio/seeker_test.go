package audio

import (
	"context"
	"testing"
	"time"

	"tickbus/internal/eventbus"
	"tickbus/pkg/logx"

	"github.com/stretchr/testify/require"
)

func TestEventSeekerPublishes(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(2, "audio.")
	defer unsub()

	s := NewEventSeeker(bus, logx.Nop())
	require.NoError(t, s.Seek(context.Background(), -5))

	select {
	case e := <-ch:
		require.Equal(t, "audio.seek", e.Type)
		require.Equal(t, SeekEvent{OffsetSeconds: -5}, e.Data)
	case <-time.After(time.Second):
		t.Fatal("expected audio.seek")
	}
}

func TestEventSeekerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewEventSeeker(nil, logx.Nop()).Seek(ctx, 5), context.Canceled)
}
