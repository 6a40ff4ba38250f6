/*
Package inventory provides the stock ledger core.

PURPOSE:
  This package owns the product catalog, the inbound and outbound ledgers,
  and the Reconciler that couples ledger writes to catalog quantity. A
  receipt adds stock, a consumption removes it, and the catalog quantity is
  the running result of those operations plus any direct corrections.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: a catalog entry with its current quantity and prices
  - InboundEntry / OutboundEntry: ledger rows with snapshotted totals
  - Supplier: referenced by inbound entries, never owned by them
  - Actor: who performs an operation, passed explicitly on every call

SNAPSHOT FIELDS:
  InboundEntry.TotalCost and OutboundEntry.TotalRevenue are computed once,
  at creation time, from the product price of that moment. Later price
  edits never touch them.

USAGE:
  rec := inventory.NewReconciler(store, inventory.ReconcilerOptions{})
  entry, err := rec.RecordOutbound(ctx, actor, inventory.OutboundInput{
      ProductID: "p-flour",
      Quantity:  5,
  })

SEE ALSO:
  - reconciler.go: quantity-affecting operations
  - store.go: persistence interfaces
  - errors.go: error taxonomy
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type SupplierID string
type EntryID string

// =============================================================================
// ACTOR - Who performs an operation
// =============================================================================

type Role string

const (
	RoleAdmin   Role = "admin"   // Kitchen lead: full access to stock movements
	RoleManager Role = "manager" // Production supervisor: reports only
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleManager
}

// Actor identifies the caller of an operation. The Reconciler records it on
// outbound entries and in logs; it never authorizes on Role.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// UnknownActorName is recorded when an outbound entry is made by an actor
// without a display name.
const UnknownActorName = "unknown"

// DisplayName returns the actor's name, or UnknownActorName.
func (a Actor) DisplayName() string {
	if a.Name == "" {
		return UnknownActorName
	}
	return a.Name
}

// =============================================================================
// PRODUCT - Catalog entry
// =============================================================================

type Product struct {
	ID             ProductID       `json:"id"`
	Code           string          `json:"code" validate:"required,max=64"`
	Name           string          `json:"name" validate:"required,max=200"`
	QuantityOnHand int64           `json:"quantityOnHand" validate:"gte=0"`
	UnitCost       decimal.Decimal `json:"unitCost" validate:"gte=0"`
	UnitPrice      decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	ImageURL       string          `json:"imageUrl,omitempty" validate:"omitempty,url"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ProductFields is a partial product edit. Nil fields are left unchanged.
type ProductFields struct {
	Code           *string
	Name           *string
	QuantityOnHand *int64
	UnitCost       *decimal.Decimal
	UnitPrice      *decimal.Decimal
	ImageURL       *string
}

// IsEmpty reports whether the edit changes nothing.
func (f ProductFields) IsEmpty() bool {
	return f.Code == nil && f.Name == nil && f.QuantityOnHand == nil &&
		f.UnitCost == nil && f.UnitPrice == nil && f.ImageURL == nil
}

// Apply returns p with the non-nil fields of f applied.
func (f ProductFields) Apply(p Product) Product {
	if f.Code != nil {
		p.Code = *f.Code
	}
	if f.Name != nil {
		p.Name = *f.Name
	}
	if f.QuantityOnHand != nil {
		p.QuantityOnHand = *f.QuantityOnHand
	}
	if f.UnitCost != nil {
		p.UnitCost = *f.UnitCost
	}
	if f.UnitPrice != nil {
		p.UnitPrice = *f.UnitPrice
	}
	if f.ImageURL != nil {
		p.ImageURL = *f.ImageURL
	}
	return p
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// InboundEntry records goods received from a supplier.
type InboundEntry struct {
	ID         EntryID         `json:"id"`
	ProductID  ProductID       `json:"productId"`
	SupplierID SupplierID      `json:"supplierId"`
	Quantity   int64           `json:"quantity"`
	TotalCost  decimal.Decimal `json:"totalCost"` // quantity × unit cost at entry time
	Timestamp  time.Time       `json:"timestamp"`
}

// OutboundEntry records goods taken out of stock.
type OutboundEntry struct {
	ID           EntryID         `json:"id"`
	ProductID    ProductID       `json:"productId"`
	Quantity     int64           `json:"quantity"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"` // quantity × unit price at entry time
	Timestamp    time.Time       `json:"timestamp"`
	ActorID      string          `json:"actorId"`
	ActorName    string          `json:"actorName"`
}

// InboundInput is the caller-supplied part of an inbound entry.
type InboundInput struct {
	ProductID  ProductID  `validate:"required"`
	SupplierID SupplierID
	Quantity   int64 `validate:"gt=0"`
}

// OutboundInput is the caller-supplied part of an outbound entry.
type OutboundInput struct {
	ProductID ProductID `validate:"required"`
	Quantity  int64     `validate:"gt=0"`
}

// =============================================================================
// SUPPLIER
// =============================================================================

type Supplier struct {
	ID      SupplierID `json:"id"`
	Name    string     `json:"name" validate:"required,max=200"`
	Contact string     `json:"contact" validate:"max=200"`
	Address string     `json:"address" validate:"max=500"`
}

// =============================================================================
// LISTING
// =============================================================================

type Order int

const (
	OrderOldestFirst Order = iota
	OrderNewestFirst
)

// EntryFilter selects ledger entries by timestamp. Bounds are inclusive; a
// nil bound is open.
type EntryFilter struct {
	From  *time.Time
	To    *time.Time
	Order Order
}

// Match reports whether ts falls inside the filter bounds.
func (f EntryFilter) Match(ts time.Time) bool {
	if f.From != nil && ts.Before(*f.From) {
		return false
	}
	if f.To != nil && ts.After(*f.To) {
		return false
	}
	return true
}

// DayRange builds a filter covering whole calendar days in loc, from the
// start of from's day to the last instant of to's day. Zero times leave that
// side open.
func DayRange(from, to time.Time, loc *time.Location) EntryFilter {
	if loc == nil {
		loc = time.UTC
	}
	var f EntryFilter
	if !from.IsZero() {
		start := StartOfDay(from, loc)
		f.From = &start
	}
	if !to.IsZero() {
		end := StartOfDay(to, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
		f.To = &end
	}
	return f
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return StartOfDay(a, loc).Equal(StartOfDay(b, loc))
}
