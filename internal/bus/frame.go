package bus

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"tickbus/internal/eventbus"
	"tickbus/pkg/logx"

	"golang.org/x/time/rate"
)

// maxData keeps len (data + dst + checksum) within one byte.
const maxData = 0xFF - 2

// Encode builds an I-Bus frame: src len dst data... xor, where len counts
// dst, data and the checksum byte, and xor covers every preceding byte.
func Encode(src, dst string, data []string) ([]byte, error) {
	s, err := parseByte(src)
	if err != nil {
		return nil, fmt.Errorf("%w: src: %v", ErrBadPacket, err)
	}
	d, err := parseByte(dst)
	if err != nil {
		return nil, fmt.Errorf("%w: dst: %v", ErrBadPacket, err)
	}
	if len(data) > maxData {
		return nil, fmt.Errorf("%w: %d data bytes", ErrBadPacket, len(data))
	}

	frame := make([]byte, 0, len(data)+4)
	frame = append(frame, s, byte(len(data)+2), d)
	for i, x := range data {
		b, err := parseByte(x)
		if err != nil {
			return nil, fmt.Errorf("%w: data[%d]: %v", ErrBadPacket, i, err)
		}
		frame = append(frame, b)
	}
	var sum byte
	for _, b := range frame {
		sum ^= b
	}
	return append(frame, sum), nil
}

func parseByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return 0, fmt.Errorf("want 2 hex digits, got %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

type FrameOptions struct {
	// PacketsPerSecond paces writes onto the line; <=0 disables pacing.
	PacketsPerSecond float64
	Burst            int
	Events           eventbus.Bus
	// OnWrite, if set, sees the outcome of every frame put on the line.
	OnWrite func(err error)
}

// FrameWriter encodes packets and writes whole frames to an io.Writer
// (typically the serial device). Safe for concurrent use.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
	events  eventbus.Bus
	onWrite func(error)
	log     logx.Logger
}

func NewFrameWriter(w io.Writer, opt FrameOptions, log logx.Logger) *FrameWriter {
	fw := &FrameWriter{w: w, events: opt.Events, onWrite: opt.OnWrite, log: log}
	if fw.events == nil {
		fw.events = eventbus.Nop()
	}
	if opt.PacketsPerSecond > 0 {
		burst := opt.Burst
		if burst <= 0 {
			burst = 1
		}
		fw.limiter = rate.NewLimiter(rate.Limit(opt.PacketsPerSecond), burst)
	}
	return fw
}

func (fw *FrameWriter) WriteBusPacket(ctx context.Context, src, dst string, data []string) error {
	frame, err := Encode(src, dst, data)
	if err != nil {
		return err
	}
	if fw.limiter != nil {
		if err := fw.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	fw.mu.Lock()
	_, err = fw.w.Write(frame)
	fw.mu.Unlock()
	if fw.onWrite != nil {
		fw.onWrite(err)
	}
	if err != nil {
		return err
	}

	fw.log.Debug("bus packet written", logx.String("frame", hex.EncodeToString(frame)))
	fw.events.Publish(eventbus.Event{
		Type: "bus.packet",
		Data: map[string]any{"src": src, "dst": dst, "data": data, "frame": hex.EncodeToString(frame)},
	})
	return nil
}

// LogWriter is the dry-run writer used when no device is configured: it
// validates and logs each frame without touching hardware.
type LogWriter struct {
	Log logx.Logger
}

func (lw LogWriter) WriteBusPacket(_ context.Context, src, dst string, data []string) error {
	frame, err := Encode(src, dst, data)
	if err != nil {
		return err
	}
	lw.Log.Info("bus packet (dry run)",
		logx.String("src", src),
		logx.String("dst", dst),
		logx.Strings("data", data),
		logx.String("frame", hex.EncodeToString(frame)))
	return nil
}
