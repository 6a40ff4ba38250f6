/*
store.go - Persistence interfaces for the catalog, ledgers and suppliers

PURPOSE:
  Defines the boundary between the Reconciler and the database. Stores
  persist records and enforce the one rule that must hold under
  concurrency: quantity on hand never drops below zero.

KEY INTERFACES:
  CatalogStore:  Products, including the atomic quantity adjustment
  LedgerStore:   Inbound and outbound entries
  SupplierStore: Supplier records
  Store:         All three
  TxStore:       Store plus WithTx for all-or-nothing multi-record writes

ATOMIC ADJUSTMENT:
  AdjustQuantity applies a delta as a single conditional update. If the
  result would be negative the store changes nothing and returns an
  *InsufficientStockError carrying the quantity it observed. Two callers
  racing for the last units therefore cannot both succeed.

ERRORS:
  Missing records: *NotFoundError. Duplicate product codes:
  ErrDuplicateCode. Everything else from the driver: *PersistenceError.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory, for tests and demos
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - reconciler.go: Uses these interfaces
*/
package inventory

import "context"

// =============================================================================
// STORE - Interfaces for catalog, ledger and supplier persistence
// =============================================================================

type CatalogStore interface {
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	GetProductByCode(ctx context.Context, code string) (Product, error)

	// ListProducts returns all products ordered by code.
	ListProducts(ctx context.Context) ([]Product, error)

	// PutProduct inserts or replaces a product.
	PutProduct(ctx context.Context, p Product) error

	DeleteProduct(ctx context.Context, id ProductID) error

	// AdjustQuantity adds delta to the product's quantity on hand and returns
	// the updated product. Refuses any delta that would leave it negative.
	AdjustQuantity(ctx context.Context, id ProductID, delta int64) (Product, error)
}

type LedgerStore interface {
	InsertInbound(ctx context.Context, e InboundEntry) error
	GetInbound(ctx context.Context, id EntryID) (InboundEntry, error)
	UpdateInbound(ctx context.Context, e InboundEntry) error
	DeleteInbound(ctx context.Context, id EntryID) error
	ListInbound(ctx context.Context, f EntryFilter) ([]InboundEntry, error)

	InsertOutbound(ctx context.Context, e OutboundEntry) error
	GetOutbound(ctx context.Context, id EntryID) (OutboundEntry, error)
	DeleteOutbound(ctx context.Context, id EntryID) error
	ListOutbound(ctx context.Context, f EntryFilter) ([]OutboundEntry, error)
}

type SupplierStore interface {
	GetSupplier(ctx context.Context, id SupplierID) (Supplier, error)

	// ListSuppliers returns all suppliers ordered by name.
	ListSuppliers(ctx context.Context) ([]Supplier, error)

	// PutSupplier inserts or replaces a supplier.
	PutSupplier(ctx context.Context, s Supplier) error

	DeleteSupplier(ctx context.Context, id SupplierID) error
}

type Store interface {
	CatalogStore
	LedgerStore
	SupplierStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
