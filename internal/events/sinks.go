package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// LiveChannel is the pub/sub channel the WebSocket hub subscribes to.
const LiveChannel = "events"

// StreamName is the durable stream indexers replay.
const StreamName = "stream:events"

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With(slog.String("component", "events"))}
}

// Emit implements domain.EventSink.
func (s *LogSink) Emit(ctx context.Context, ev domain.Event) {
	s.logger.InfoContext(ctx, string(ev.Type),
		slog.String("event_id", ev.ID),
		slog.Any("fields", ev.Fields),
	)
}

// JournalSink appends events to the durable journal. Append failures are
// logged and absorbed; the journal is an observer, not the source of truth.
type JournalSink struct {
	journal domain.EventJournal
	logger  *slog.Logger
}

// NewJournalSink creates a JournalSink over the given journal.
func NewJournalSink(journal domain.EventJournal, logger *slog.Logger) *JournalSink {
	return &JournalSink{
		journal: journal,
		logger:  logger.With(slog.String("component", "journal_sink")),
	}
}

// Emit implements domain.EventSink.
func (s *JournalSink) Emit(ctx context.Context, ev domain.Event) {
	if err := s.journal.Append(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "journal append failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// StreamSink publishes events as JSON to the live pub/sub channel and
// appends them to the durable stream.
type StreamSink struct {
	bus    domain.StreamBus
	logger *slog.Logger
}

// NewStreamSink creates a StreamSink over the given bus.
func NewStreamSink(bus domain.StreamBus, logger *slog.Logger) *StreamSink {
	return &StreamSink{
		bus:    bus,
		logger: logger.With(slog.String("component", "stream_sink")),
	}
}

// Emit implements domain.EventSink.
func (s *StreamSink) Emit(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "event marshal failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	// Typed channel first so wildcard subscribers can filter by event type,
	// then the flat channel for consumers that want everything.
	for _, ch := range []string{LiveChannel + ":" + string(ev.Type), LiveChannel} {
		if err := s.bus.Publish(ctx, ch, payload); err != nil {
			s.logger.WarnContext(ctx, "live publish failed",
				slog.String("event_id", ev.ID),
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.bus.StreamAppend(ctx, StreamName, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}

var (
	_ domain.EventSink = (*LogSink)(nil)
	_ domain.EventSink = (*JournalSink)(nil)
	_ domain.EventSink = (*StreamSink)(nil)
)
