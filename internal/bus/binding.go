package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"tickbus/pkg/logx"
)

// Writer puts one packet on the bus. src and dst are single hex bytes
// ("18", "FF"); data is a sequence of hex bytes.
type Writer interface {
	WriteBusPacket(ctx context.Context, src, dst string, data []string) error
}

type writerBox struct{ w Writer }

// Binding is the swappable reference handlers write through. It is bound
// once at start-up and cleared at shutdown; reads are lock-free.
type Binding struct {
	cur atomic.Pointer[writerBox]
	log logx.Logger
}

func NewBinding(log logx.Logger) *Binding {
	return &Binding{log: log}
}

// Bind installs w, replacing any previous writer. Bind(nil) is Unbind.
func (b *Binding) Bind(w Writer) {
	if w == nil {
		b.Unbind()
		return
	}
	prev := b.cur.Swap(&writerBox{w: w})
	b.log.Info("bus writer bound", logx.String("writer", fmt.Sprintf("%T", w)), logx.Bool("replaced", prev != nil))
}

// Unbind clears the writer. Calling it with nothing bound is a no-op.
func (b *Binding) Unbind() {
	if prev := b.cur.Swap(nil); prev != nil {
		b.log.Info("bus writer unbound", logx.String("writer", fmt.Sprintf("%T", prev.w)))
	}
}

func (b *Binding) Bound() bool { return b.cur.Load() != nil }

// WriteBusPacket forwards to the bound writer. Failures from the writer come
// back as *WriteError.
func (b *Binding) WriteBusPacket(ctx context.Context, src, dst string, data []string) error {
	box := b.cur.Load()
	if box == nil {
		return ErrNoWriterBound
	}
	err := box.w.WriteBusPacket(ctx, src, dst, data)
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Src: src, Dst: dst, Err: err}
}
