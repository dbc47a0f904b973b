// Package handler is the closed set of tick handlers the scheduler can run.
//
// Names are resolved once, when a task is enabled. Adding a handler means
// adding a Kind constant, its name and its case in Bind.
package handler

import (
	"context"
	"errors"

	"tickbus/internal/audio"
	"tickbus/internal/bus"
)

// SeekStep is how far one scan tick moves playback, in seconds.
const SeekStep = 5

type Kind uint8

const (
	Invalid Kind = iota
	ScanForward
	ScanBackward
	PollResponse
)

var names = [...]string{
	Invalid:      "",
	ScanForward:  "scanForward",
	ScanBackward: "scanBackward",
	PollResponse: "pollResponse",
}

func (k Kind) String() string {
	if int(k) < len(names) && k != Invalid {
		return names[k]
	}
	return "invalid"
}

// Lookup resolves a task name (case-sensitive) to its Kind.
func Lookup(name string) (Kind, bool) {
	for k := ScanForward; int(k) < len(names); k++ {
		if names[k] == name {
			return k, true
		}
	}
	return Invalid, false
}

// Names lists every known task name in declaration order.
func Names() []string {
	out := make([]string, 0, len(names)-1)
	for _, n := range names[1:] {
		out = append(out, n)
	}
	return out
}

// Func is one tick's worth of work.
type Func func(ctx context.Context) error

// Deps are the collaborators handlers act on.
type Deps struct {
	Bus   bus.Writer
	Audio audio.Seeker
}

var (
	errNoAudio = errors.New("handler: no audio seeker")
	errNoBus   = errors.New("handler: no bus writer")
)

// Bind returns the handler for k. It panics on Invalid, which Lookup never returns
// for a known name.
func (k Kind) Bind(deps Deps) Func {
	switch k {
	case ScanForward:
		return func(ctx context.Context) error { return seek(ctx, deps.Audio, SeekStep) }
	case ScanBackward:
		return func(ctx context.Context) error { return seek(ctx, deps.Audio, -SeekStep) }
	case PollResponse:
		return func(ctx context.Context) error {
			if deps.Bus == nil {
				return errNoBus
			}
			return deps.Bus.WriteBusPacket(ctx, "18", "FF", []string{"02", "00"})
		}
	default:
		panic("handler: bind of invalid kind")
	}
}

func seek(ctx context.Context, s audio.Seeker, offset int) error {
	if s == nil {
		return errNoAudio
	}
	return s.Seek(ctx, offset)
}
