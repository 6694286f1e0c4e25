package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mrheyday/futarchy-arbitrage-sub000/internal/domain"
)

// EventSink adapts a Notifier to the domain.EventSink interface so operator
// alerts ride the same bus as every other event consumer. The Notifier's own
// event filter decides which types actually go out.
type EventSink struct {
	notifier *Notifier
}

// NewEventSink wraps the notifier as an event sink.
func NewEventSink(n *Notifier) *EventSink {
	return &EventSink{notifier: n}
}

var _ domain.EventSink = (*EventSink)(nil)

// Emit formats the event and hands it to the notifier. Delivery failures are
// logged inside the notifier and never propagate.
func (s *EventSink) Emit(ctx context.Context, ev domain.Event) {
	_ = s.notifier.Notify(ctx, string(ev.Type), title(ev), body(ev))
}

func title(ev domain.Event) string {
	return strings.ReplaceAll(string(ev.Type), "_", " ")
}

// body renders the event fields as sorted key: value lines.
func body(ev domain.Event) string {
	if len(ev.Fields) == 0 {
		return ev.At.Format("2006-01-02 15:04:05 UTC")
	}

	keys := make([]string, 0, len(ev.Fields))
	for k := range ev.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, ev.Fields[k]))
	}
	return strings.Join(lines, "\n")
}
