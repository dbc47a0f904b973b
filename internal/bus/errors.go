package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWriterBound is returned when a packet is written before Bind or after Unbind.
	ErrNoWriterBound = errors.New("bus: no writer bound")
	ErrBadPacket     = errors.New("bus: bad packet")
)

// WriteError wraps a failure reported by the underlying Writer.
type WriteError struct {
	Src, Dst string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("bus: write %s->%s: %v", e.Src, e.Dst, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
