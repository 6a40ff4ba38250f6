/*
reconciler.go - Couples ledger writes to catalog quantity

PURPOSE:
  Every stock movement is two writes: a ledger row and a change to the
  product's quantity on hand. The Reconciler performs both, validates the
  input first, and refuses any outbound that would leave quantity negative.

OPERATIONS:
  RecordInbound    +quantity, TotalCost = quantity × unit cost
  UpdateInbound    rewrites the entry, quantity unchanged by default
  DeleteInbound    removes the entry, quantity unchanged by default
  RecordOutbound   -quantity, TotalRevenue = quantity × unit price
  DeleteOutbound   removes the entry, quantity unchanged by default
  AdjustCatalog    direct edit of product fields, quantity included
  ListBelowThreshold

EDITS AND DELETES:
  By default editing or deleting a ledger entry does not touch quantity on
  hand, so the catalog can drift from the ledger sum. Corrections are made
  through AdjustCatalog. With ReconcileEdits enabled the Reconciler applies
  the compensating delta instead, and a delete that would drive quantity
  negative is refused.

ATOMICITY:
  When the store implements TxStore both writes run in one transaction.
  Otherwise the ledger row is written first and the quantity second. If the
  quantity update loses a race for the last units, the ledger row is
  removed again and InsufficientStock is returned. Any other failure of the
  second write is returned as a PersistenceError with Inconsistent set.

QUANTITY FLOOR:
  The pre-check against the observed quantity gives a precise error for the
  common case. The store's conditional AdjustQuantity is what guarantees the
  floor when callers race.

SEE ALSO:
  - store.go: AdjustQuantity contract
  - catalog.go: Product and supplier maintenance
  - lowstock.go: Threshold queries
*/
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/logging"
)

// =============================================================================
// RECONCILER
// =============================================================================

type ReconcilerOptions struct {
	// LowStockThreshold is used by LowStock. Nil means
	// DefaultLowStockThreshold; zero is a valid threshold.
	LowStockThreshold *int64

	// ReconcileEdits makes entry edits and deletes adjust quantity on hand.
	ReconcileEdits bool

	Clock    func() time.Time
	NewID    func() string
	Events   EventPublisher
	Recorder OperationRecorder
	Logger   *logging.Logger
}

type Reconciler struct {
	store          Store
	threshold      int64
	reconcileEdits bool
	clock          func() time.Time
	newID          func() string
	events         EventPublisher
	recorder       OperationRecorder
	log            *logging.Logger
}

func NewReconciler(store Store, opts ReconcilerOptions) *Reconciler {
	r := &Reconciler{
		store:          store,
		threshold:      DefaultLowStockThreshold,
		reconcileEdits: opts.ReconcileEdits,
		clock:          opts.Clock,
		newID:          opts.NewID,
		events:         opts.Events,
		recorder:       opts.Recorder,
		log:            opts.Logger,
	}
	if opts.LowStockThreshold != nil && *opts.LowStockThreshold >= 0 {
		r.threshold = *opts.LowStockThreshold
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.events == nil {
		r.events = nopPublisher{}
	}
	if r.recorder == nil {
		r.recorder = nopRecorder{}
	}
	if r.log == nil {
		r.log = logging.Nop()
	}
	return r
}

func (r *Reconciler) now() time.Time {
	return r.clock().UTC()
}

// =============================================================================
// INBOUND
// =============================================================================

func (r *Reconciler) RecordInbound(ctx context.Context, actor Actor, in InboundInput) (entry InboundEntry, err error) {
	defer r.track(ctx, "record_inbound", actor, time.Now(), &err)

	if err := Validate(in); err != nil {
		return InboundEntry{}, err
	}

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, atomic bool) error {
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		entry = InboundEntry{
			ID:         EntryID(r.newID()),
			ProductID:  p.ID,
			SupplierID: in.SupplierID,
			Quantity:   in.Quantity,
			TotalCost:  p.UnitCost.Mul(decimal.NewFromInt(in.Quantity)),
			Timestamp:  r.now(),
		}
		if err := s.InsertInbound(ctx, entry); err != nil {
			return err
		}
		undo := func() error { return s.DeleteInbound(ctx, entry.ID) }
		after, err := r.settle(ctx, s, atomic, "record inbound", undo, p.ID, in.Quantity)
		if err != nil {
			return err
		}
		events = append(events, r.event(EventInboundRecorded, actor, entry.ID, after, in.Quantity))
		return nil
	})
	if err != nil {
		return InboundEntry{}, err
	}
	r.publish(ctx, events...)
	return entry, nil
}

// UpdateInbound replaces an inbound entry's product, supplier and quantity.
// TotalCost is recomputed from the product's current unit cost and the
// timestamp is reset to now.
func (r *Reconciler) UpdateInbound(ctx context.Context, actor Actor, id EntryID, in InboundInput) (entry InboundEntry, err error) {
	defer r.track(ctx, "update_inbound", actor, time.Now(), &err)

	if err := Validate(in); err != nil {
		return InboundEntry{}, err
	}

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, atomic bool) error {
		old, err := s.GetInbound(ctx, id)
		if err != nil {
			return err
		}
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		entry = InboundEntry{
			ID:         old.ID,
			ProductID:  p.ID,
			SupplierID: in.SupplierID,
			Quantity:   in.Quantity,
			TotalCost:  p.UnitCost.Mul(decimal.NewFromInt(in.Quantity)),
			Timestamp:  r.now(),
		}
		if err := s.UpdateInbound(ctx, entry); err != nil {
			return err
		}
		if !r.reconcileEdits {
			events = append(events, r.event(EventInboundUpdated, actor, entry.ID, p, 0))
			return nil
		}

		undo := func() error { return s.UpdateInbound(ctx, old) }
		if old.ProductID == entry.ProductID {
			delta := entry.Quantity - old.Quantity
			after := p
			if delta != 0 {
				if after, err = r.settle(ctx, s, atomic, "update inbound", undo, p.ID, delta); err != nil {
					return err
				}
			}
			events = append(events, r.event(EventInboundUpdated, actor, entry.ID, after, delta))
			return nil
		}

		// Entry moved to another product: take the old quantity back out of
		// the old product, if it still exists, then add to the new one.
		if _, err := s.GetProduct(ctx, old.ProductID); err == nil {
			prev, err := r.settle(ctx, s, atomic, "update inbound", undo, old.ProductID, -old.Quantity)
			if err != nil {
				return err
			}
			events = append(events, r.event(EventInboundUpdated, actor, entry.ID, prev, -old.Quantity))
		} else if !IsNotFound(err) {
			return err
		}
		after, err := r.settle(ctx, s, atomic, "update inbound", nil, p.ID, entry.Quantity)
		if err != nil {
			return err
		}
		events = append(events, r.event(EventInboundUpdated, actor, entry.ID, after, entry.Quantity))
		return nil
	})
	if err != nil {
		return InboundEntry{}, err
	}
	r.publish(ctx, events...)
	return entry, nil
}

func (r *Reconciler) DeleteInbound(ctx context.Context, actor Actor, id EntryID) (err error) {
	defer r.track(ctx, "delete_inbound", actor, time.Now(), &err)

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, atomic bool) error {
		old, err := s.GetInbound(ctx, id)
		if err != nil {
			return err
		}
		if err := s.DeleteInbound(ctx, id); err != nil {
			return err
		}
		undo := func() error { return s.InsertInbound(ctx, old) }
		ev, err := r.reverse(ctx, s, atomic, "delete inbound", undo, old.ProductID, -old.Quantity)
		if err != nil {
			return err
		}
		ev.Kind, ev.EntryID, ev.ActorID = EventInboundDeleted, id, actor.ID
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, events...)
	return nil
}

// =============================================================================
// OUTBOUND
// =============================================================================

func (r *Reconciler) RecordOutbound(ctx context.Context, actor Actor, in OutboundInput) (entry OutboundEntry, err error) {
	defer r.track(ctx, "record_outbound", actor, time.Now(), &err)

	if err := Validate(in); err != nil {
		return OutboundEntry{}, err
	}

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, atomic bool) error {
		p, err := s.GetProduct(ctx, in.ProductID)
		if err != nil {
			return err
		}
		if in.Quantity > p.QuantityOnHand {
			return &InsufficientStockError{
				ProductID: p.ID,
				Available: p.QuantityOnHand,
				Requested: in.Quantity,
			}
		}
		entry = OutboundEntry{
			ID:           EntryID(r.newID()),
			ProductID:    p.ID,
			Quantity:     in.Quantity,
			TotalRevenue: p.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)),
			Timestamp:    r.now(),
			ActorID:      actor.ID,
			ActorName:    actor.DisplayName(),
		}
		if err := s.InsertOutbound(ctx, entry); err != nil {
			return err
		}
		undo := func() error { return s.DeleteOutbound(ctx, entry.ID) }
		after, err := r.settle(ctx, s, atomic, "record outbound", undo, p.ID, -in.Quantity)
		if err != nil {
			return err
		}
		events = append(events, r.event(EventOutboundRecorded, actor, entry.ID, after, -in.Quantity))
		if after.QuantityOnHand <= r.threshold {
			events = append(events, r.event(EventLowStock, actor, entry.ID, after, 0))
		}
		return nil
	})
	if err != nil {
		return OutboundEntry{}, err
	}
	r.publish(ctx, events...)
	return entry, nil
}

func (r *Reconciler) DeleteOutbound(ctx context.Context, actor Actor, id EntryID) (err error) {
	defer r.track(ctx, "delete_outbound", actor, time.Now(), &err)

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, atomic bool) error {
		old, err := s.GetOutbound(ctx, id)
		if err != nil {
			return err
		}
		if err := s.DeleteOutbound(ctx, id); err != nil {
			return err
		}
		undo := func() error { return s.InsertOutbound(ctx, old) }
		ev, err := r.reverse(ctx, s, atomic, "delete outbound", undo, old.ProductID, old.Quantity)
		if err != nil {
			return err
		}
		ev.Kind, ev.EntryID, ev.ActorID = EventOutboundDeleted, id, actor.ID
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return err
	}
	r.publish(ctx, events...)
	return nil
}

// =============================================================================
// CATALOG ADJUSTMENT
// =============================================================================

// AdjustCatalog edits product fields directly. Setting QuantityOnHand here
// is the correction path for drift between the ledger and the catalog.
func (r *Reconciler) AdjustCatalog(ctx context.Context, actor Actor, id ProductID, fields ProductFields) (product Product, err error) {
	defer r.track(ctx, "adjust_catalog", actor, time.Now(), &err)

	if fields.IsEmpty() {
		return Product{}, &ValidationError{Reason: "no fields to update"}
	}
	if err := validateFields(fields); err != nil {
		return Product{}, err
	}

	var events []StockEvent
	err = r.atomically(ctx, func(s Store, _ bool) error {
		current, err := s.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product = fields.Apply(current)
		product.UpdatedAt = r.now()
		if err := Validate(product); err != nil {
			return err
		}
		if err := s.PutProduct(ctx, product); err != nil {
			return err
		}
		delta := product.QuantityOnHand - current.QuantityOnHand
		events = append(events, r.event(EventCatalogAdjusted, actor, "", product, delta))
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	r.publish(ctx, events...)
	return product, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// atomically runs fn inside a transaction when the store supports one.
func (r *Reconciler) atomically(ctx context.Context, fn func(s Store, atomic bool) error) error {
	if tx, ok := r.store.(TxStore); ok {
		return tx.WithTx(ctx, func(s Store) error { return fn(s, true) })
	}
	return fn(r.store, false)
}

// settle applies the quantity change that follows a ledger write. Inside a
// transaction any failure rolls both back. Without one, a lost race is undone
// by removing the ledger write; any other failure leaves the two disagreeing.
func (r *Reconciler) settle(ctx context.Context, s Store, atomic bool, op string, undo func() error, id ProductID, delta int64) (Product, error) {
	p, err := s.AdjustQuantity(ctx, id, delta)
	if err == nil || atomic {
		return p, err
	}
	if errors.Is(err, ErrInsufficientStock) && undo != nil {
		if uerr := undo(); uerr == nil {
			return Product{}, err
		}
	}
	perr := &PersistenceError{Op: op, Inconsistent: true, Err: err}
	r.log.Error(r.log.WithField(ctx, "product_id", string(id)), "ledger written but quantity not updated", perr)
	return Product{}, perr
}

// reverse handles the quantity side of an entry delete. Without
// ReconcileEdits it only reads the product for the event, and a failed read
// leaves the event without a quantity. A product that no longer exists is
// skipped either way.
func (r *Reconciler) reverse(ctx context.Context, s Store, atomic bool, op string, undo func() error, id ProductID, delta int64) (StockEvent, error) {
	ev := StockEvent{ProductID: id, At: r.now()}
	p, err := s.GetProduct(ctx, id)
	if IsNotFound(err) {
		return ev, nil
	}
	if err != nil {
		if !r.reconcileEdits || delta == 0 {
			r.log.Warn(r.log.WithFields(ctx, map[string]any{
				"product_id": string(id),
				"error":      err.Error(),
			}), "entry deleted but product not read for event")
			return ev, nil
		}
		if !atomic && undo != nil {
			if uerr := undo(); uerr != nil {
				perr := &PersistenceError{Op: op, Inconsistent: true, Err: err}
				r.log.Error(r.log.WithField(ctx, "product_id", string(id)), "entry deleted but quantity not updated", perr)
				return ev, perr
			}
		}
		return ev, err
	}
	if r.reconcileEdits && delta != 0 {
		if p, err = r.settle(ctx, s, atomic, op, undo, id, delta); err != nil {
			return ev, err
		}
		ev.Delta = delta
	}
	ev.QuantityOnHand = p.QuantityOnHand
	return ev, nil
}

func (r *Reconciler) event(kind EventKind, actor Actor, entryID EntryID, p Product, delta int64) StockEvent {
	return StockEvent{
		Kind:           kind,
		ProductID:      p.ID,
		EntryID:        entryID,
		Delta:          delta,
		QuantityOnHand: p.QuantityOnHand,
		ActorID:        actor.ID,
		At:             r.now(),
	}
}

func (r *Reconciler) publish(ctx context.Context, events ...StockEvent) {
	for _, ev := range events {
		if err := r.events.Publish(ctx, ev); err != nil {
			r.log.Warn(r.log.WithFields(ctx, map[string]any{
				"event": string(ev.Kind),
				"error": err.Error(),
			}), "stock event not published")
		}
	}
}

// track records metrics and a log line for one operation.
func (r *Reconciler) track(ctx context.Context, op string, actor Actor, start time.Time, errp *error) {
	err := *errp
	r.recorder.ObserveOperation(op, Outcome(err), time.Since(start))

	ctx = r.log.WithFields(ctx, map[string]any{
		"op":         op,
		"actor_id":   actor.ID,
		"actor_role": string(actor.Role),
	})
	switch {
	case err == nil:
		r.log.Debug(ctx, "stock operation completed")
	case IsClientError(err) || IsNotFound(err):
		r.log.Info(r.log.WithField(ctx, "reason", err.Error()), "stock operation rejected")
	default:
		r.log.Error(ctx, "stock operation failed", err)
	}
}
