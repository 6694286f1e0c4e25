package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the structured events that form the system's
// externally observable record.
type EventType string

const (
	EventIntentSubmitted   EventType = "intent_submitted"
	EventIntentResolved    EventType = "intent_resolved"
	EventAuctionOpened     EventType = "auction_opened"
	EventBidCommitted      EventType = "bid_committed"
	EventBidRevealed       EventType = "bid_revealed"
	EventAuctionSettled    EventType = "auction_settled"
	EventReputationUpdated EventType = "reputation_updated"
	EventComplianceChanged EventType = "compliance_changed"
	EventFundsDeposited    EventType = "funds_deposited"
	EventFundsWithdrawn    EventType = "funds_withdrawn"
	EventFlashloanExecuted EventType = "flashloan_executed"
)

// Event is one entry in the audit record. Fields hold the event-specific
// payload under stable string keys ("auction_id", "solver", "amount", ...).
type Event struct {
	ID     string         `json:"id"`
	Type   EventType      `json:"type"`
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields"`
}

// NewEvent stamps a fresh event with a UUID and the current UTC time.
func NewEvent(t EventType, fields map[string]any) Event {
	return Event{
		ID:     uuid.New().String(),
		Type:   t,
		At:     time.Now().UTC(),
		Fields: fields,
	}
}

// EventSink receives emitted events. Sinks must not fail the emitting
// operation: delivery errors are the sink's problem to log and absorb.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, ev Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }
