package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/events"
)

// EventHandler serves read access to the audit journal and the durable
// event stream.
type EventHandler struct {
	journal domain.EventJournal
	bus     domain.StreamBus
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler. bus may be nil, in which case the
// replay endpoint reports the stream as unavailable.
func NewEventHandler(journal domain.EventJournal, bus domain.StreamBus, logger *slog.Logger) *EventHandler {
	return &EventHandler{journal: journal, bus: bus, logger: logHandler(logger, "event")}
}

// ListEvents returns journal entries, newest first. An optional ?type=
// filter narrows to a single event type.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		evs []domain.Event
		err error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		evs, err = h.journal.ListByType(r.Context(), domain.EventType(t), opts)
	} else {
		evs, err = h.journal.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("journal query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "journal query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": evs,
		"count":  len(evs),
	})
}

type replayMessage struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ReplayEvents reads forward from the durable stream so indexers can resume
// after the position they last saw. ?last_id= is the stream position to read
// after ("0" or absent starts from the beginning); ?count= caps the batch
// (default 100, max 1000). The returned last_id feeds the next call.
// GET /api/events/replay
func (h *EventHandler) ReplayEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	lastID := r.URL.Query().Get("last_id")
	if lastID == "" {
		lastID = "0"
	}
	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = n
	}
	if count > 1000 {
		count = 1000
	}

	msgs, err := h.bus.StreamRead(r.Context(), events.StreamName, lastID, count)
	if err != nil {
		h.logger.Error("stream read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "stream read failed")
		return
	}

	out := make([]replayMessage, len(msgs))
	next := lastID
	for i, m := range msgs {
		out[i] = replayMessage{ID: m.ID, Event: json.RawMessage(m.Payload)}
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": out,
		"count":    len(out),
		"last_id":  next,
	})
}
