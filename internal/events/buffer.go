package events

import (
	"context"
	"sync"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Buffer stages events for an in-flight unit of work. Nothing reaches the
// downstream sink until Commit; Discard drops everything staged, so a rolled
// back call leaves no trace in the external record.
type Buffer struct {
	mu     sync.Mutex
	staged []domain.Event
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit implements domain.EventSink by staging the event.
func (b *Buffer) Emit(_ context.Context, ev domain.Event) {
	b.mu.Lock()
	b.staged = append(b.staged, ev)
	b.mu.Unlock()
}

// Commit flushes all staged events to dst in emission order and resets the
// buffer.
func (b *Buffer) Commit(ctx context.Context, dst domain.EventSink) {
	b.mu.Lock()
	staged := b.staged
	b.staged = nil
	b.mu.Unlock()

	for _, ev := range staged {
		dst.Emit(ctx, ev)
	}
}

// Discard drops all staged events.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.staged = nil
	b.mu.Unlock()
}

// Salvage forwards the staged events matching keep to dst in emission order
// and drops the rest. A rolled back unit of work uses it to let audit
// records of external side effects escape while its state events vanish.
func (b *Buffer) Salvage(ctx context.Context, dst domain.EventSink, keep func(domain.Event) bool) {
	b.mu.Lock()
	staged := b.staged
	b.staged = nil
	b.mu.Unlock()

	for _, ev := range staged {
		if keep(ev) {
			dst.Emit(ctx, ev)
		}
	}
}

// Len reports the number of staged events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.staged)
}

var _ domain.EventSink = (*Buffer)(nil)
