package inventory

import (
	"context"
	"errors"
	"time"
)

type EventKind string

const (
	EventInboundRecorded  EventKind = "inbound_recorded"
	EventInboundUpdated   EventKind = "inbound_updated"
	EventInboundDeleted   EventKind = "inbound_deleted"
	EventOutboundRecorded EventKind = "outbound_recorded"
	EventOutboundDeleted  EventKind = "outbound_deleted"
	EventCatalogAdjusted  EventKind = "catalog_adjusted"
	EventProductCreated   EventKind = "product_created"
	EventProductDeleted   EventKind = "product_deleted"
	EventLowStock         EventKind = "low_stock"
)

// StockEvent is emitted after a successful write. Delta is the change in
// quantity on hand that the write caused, zero when it caused none.
type StockEvent struct {
	Kind           EventKind `json:"kind"`
	ProductID      ProductID `json:"productId"`
	EntryID        EntryID   `json:"entryId,omitempty"`
	Delta          int64     `json:"delta"`
	QuantityOnHand int64     `json:"quantityOnHand"`
	ActorID        string    `json:"actorId,omitempty"`
	At             time.Time `json:"at"`
}

// EventPublisher receives stock events. Publish failures are logged by the
// caller and never fail the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev StockEvent) error
}

// OperationRecorder observes the outcome and latency of each operation.
type OperationRecorder interface {
	ObserveOperation(op, outcome string, d time.Duration)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, StockEvent) error { return nil }

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case IsInconsistent(err):
		return "inconsistent"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case IsClientError(err):
		return "invalid"
	default:
		return "error"
	}
}
