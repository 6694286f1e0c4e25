// Package events fans emitted domain events out to the configured sinks:
// the structured log, the durable journal, the live stream bus, and any
// operator notifiers. It also provides the transactional buffer the
// coordinator uses to hold events back until a unit of work commits.
package events

import (
	"context"
	"log/slog"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// Bus delivers each event to every registered sink. Sinks absorb their own
// delivery failures; emission never fails the mutating operation.
type Bus struct {
	sinks  []domain.EventSink
	logger *slog.Logger
}

// NewBus creates a Bus over the given sinks.
func NewBus(logger *slog.Logger, sinks ...domain.EventSink) *Bus {
	return &Bus{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Attach registers an additional sink. Not safe to call after the bus is in
// use; wire everything before serving.
func (b *Bus) Attach(sink domain.EventSink) {
	b.sinks = append(b.sinks, sink)
}

// Emit implements domain.EventSink.
func (b *Bus) Emit(ctx context.Context, ev domain.Event) {
	for _, s := range b.sinks {
		s.Emit(ctx, ev)
	}
	b.logger.DebugContext(ctx, "event emitted",
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type)),
	)
}

var _ domain.EventSink = (*Bus)(nil)
