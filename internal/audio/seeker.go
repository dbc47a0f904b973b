package audio

import (
	"context"

	"tickbus/internal/eventbus"
	"tickbus/pkg/logx"
)

// Seeker moves playback relative to the current position.
type Seeker interface {
	Seek(ctx context.Context, offsetSeconds int) error
}

// SeekEvent is the payload of "audio.seek".
type SeekEvent struct {
	OffsetSeconds int `json:"offset_seconds"`
}

// EventSeeker hands seeks to the audio module over the event bus and
// returns without waiting for the player.
type EventSeeker struct {
	bus eventbus.Bus
	log logx.Logger
}

func NewEventSeeker(bus eventbus.Bus, log logx.Logger) *EventSeeker {
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &EventSeeker{bus: bus, log: log}
}

func (s *EventSeeker) Seek(ctx context.Context, offsetSeconds int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.bus.Publish(eventbus.Event{Type: "audio.seek", Data: SeekEvent{OffsetSeconds: offsetSeconds}})
	s.log.Debug("seek requested", logx.Int("offset_s", offsetSeconds))
	return nil
}
