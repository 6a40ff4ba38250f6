// Package store provides in-memory inventory.Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dapurkue/stockledger/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	*tables
}

// tables holds the records and implements inventory.Store without locking.
// Memory locks around it; the transactional view uses it under the
// transaction's lock.
type tables struct {
	products  map[inventory.ProductID]inventory.Product
	inbound   map[inventory.EntryID]inventory.InboundEntry
	outbound  map[inventory.EntryID]inventory.OutboundEntry
	suppliers map[inventory.SupplierID]inventory.Supplier
}

func newTables() *tables {
	return &tables{
		products:  make(map[inventory.ProductID]inventory.Product),
		inbound:   make(map[inventory.EntryID]inventory.InboundEntry),
		outbound:  make(map[inventory.EntryID]inventory.OutboundEntry),
		suppliers: make(map[inventory.SupplierID]inventory.Supplier),
	}
}

func NewMemory() *Memory {
	return &Memory{tables: newTables()}
}

// Reset drops every record.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = newTables()
	return nil
}

func (m *Memory) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.GetProduct(ctx, id)
}

func (m *Memory) GetProductByCode(ctx context.Context, code string) (inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.GetProductByCode(ctx, code)
}

func (m *Memory) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.ListProducts(ctx)
}

func (m *Memory) PutProduct(ctx context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.PutProduct(ctx, p)
}

func (m *Memory) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.DeleteProduct(ctx, id)
}

// AdjustQuantity checks and applies delta under one write lock.
func (m *Memory) AdjustQuantity(ctx context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.AdjustQuantity(ctx, id, delta)
}

func (m *Memory) InsertInbound(ctx context.Context, e inventory.InboundEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.InsertInbound(ctx, e)
}

func (m *Memory) GetInbound(ctx context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.GetInbound(ctx, id)
}

func (m *Memory) UpdateInbound(ctx context.Context, e inventory.InboundEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.UpdateInbound(ctx, e)
}

func (m *Memory) DeleteInbound(ctx context.Context, id inventory.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.DeleteInbound(ctx, id)
}

func (m *Memory) ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.ListInbound(ctx, f)
}

func (m *Memory) InsertOutbound(ctx context.Context, e inventory.OutboundEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.InsertOutbound(ctx, e)
}

func (m *Memory) GetOutbound(ctx context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.GetOutbound(ctx, id)
}

func (m *Memory) DeleteOutbound(ctx context.Context, id inventory.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.DeleteOutbound(ctx, id)
}

func (m *Memory) ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.ListOutbound(ctx, f)
}

func (m *Memory) GetSupplier(ctx context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.GetSupplier(ctx, id)
}

func (m *Memory) ListSuppliers(ctx context.Context) ([]inventory.Supplier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tables.ListSuppliers(ctx)
}

func (m *Memory) PutSupplier(ctx context.Context, s inventory.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.PutSupplier(ctx, s)
}

func (m *Memory) DeleteSupplier(ctx context.Context, id inventory.SupplierID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables.DeleteSupplier(ctx, id)
}

// =============================================================================
// TABLES - Unlocked record access
// =============================================================================

func (t *tables) GetProduct(_ context.Context, id inventory.ProductID) (inventory.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return inventory.Product{}, &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	return p, nil
}

func (t *tables) GetProductByCode(_ context.Context, code string) (inventory.Product, error) {
	for _, p := range t.products {
		if strings.EqualFold(p.Code, code) {
			return p, nil
		}
	}
	return inventory.Product{}, &inventory.NotFoundError{Kind: "product", ID: code}
}

func (t *tables) ListProducts(_ context.Context) ([]inventory.Product, error) {
	result := slices.Collect(maps.Values(t.products))
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (t *tables) PutProduct(_ context.Context, p inventory.Product) error {
	for _, other := range t.products {
		if other.ID != p.ID && strings.EqualFold(other.Code, p.Code) {
			return inventory.ErrDuplicateCode
		}
	}
	t.products[p.ID] = p
	return nil
}

func (t *tables) DeleteProduct(_ context.Context, id inventory.ProductID) error {
	if _, ok := t.products[id]; !ok {
		return &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	delete(t.products, id)
	return nil
}

func (t *tables) AdjustQuantity(_ context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	p, ok := t.products[id]
	if !ok {
		return inventory.Product{}, &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	if p.QuantityOnHand+delta < 0 {
		return inventory.Product{}, &inventory.InsufficientStockError{
			ProductID: id,
			Available: p.QuantityOnHand,
			Requested: -delta,
		}
	}
	p.QuantityOnHand += delta
	t.products[id] = p
	return p, nil
}

func (t *tables) InsertInbound(_ context.Context, e inventory.InboundEntry) error {
	t.inbound[e.ID] = e
	return nil
}

func (t *tables) GetInbound(_ context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	e, ok := t.inbound[id]
	if !ok {
		return inventory.InboundEntry{}, &inventory.NotFoundError{Kind: "inbound entry", ID: string(id)}
	}
	return e, nil
}

func (t *tables) UpdateInbound(_ context.Context, e inventory.InboundEntry) error {
	if _, ok := t.inbound[e.ID]; !ok {
		return &inventory.NotFoundError{Kind: "inbound entry", ID: string(e.ID)}
	}
	t.inbound[e.ID] = e
	return nil
}

func (t *tables) DeleteInbound(_ context.Context, id inventory.EntryID) error {
	if _, ok := t.inbound[id]; !ok {
		return &inventory.NotFoundError{Kind: "inbound entry", ID: string(id)}
	}
	delete(t.inbound, id)
	return nil
}

func (t *tables) ListInbound(_ context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	var result []inventory.InboundEntry
	for _, e := range t.inbound {
		if f.Match(e.Timestamp) {
			result = append(result, e)
		}
	}
	sortEntries(result, f.Order, func(e inventory.InboundEntry) (int64, inventory.EntryID) {
		return e.Timestamp.UnixNano(), e.ID
	})
	return result, nil
}

func (t *tables) InsertOutbound(_ context.Context, e inventory.OutboundEntry) error {
	t.outbound[e.ID] = e
	return nil
}

func (t *tables) GetOutbound(_ context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	e, ok := t.outbound[id]
	if !ok {
		return inventory.OutboundEntry{}, &inventory.NotFoundError{Kind: "outbound entry", ID: string(id)}
	}
	return e, nil
}

func (t *tables) DeleteOutbound(_ context.Context, id inventory.EntryID) error {
	if _, ok := t.outbound[id]; !ok {
		return &inventory.NotFoundError{Kind: "outbound entry", ID: string(id)}
	}
	delete(t.outbound, id)
	return nil
}

func (t *tables) ListOutbound(_ context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	var result []inventory.OutboundEntry
	for _, e := range t.outbound {
		if f.Match(e.Timestamp) {
			result = append(result, e)
		}
	}
	sortEntries(result, f.Order, func(e inventory.OutboundEntry) (int64, inventory.EntryID) {
		return e.Timestamp.UnixNano(), e.ID
	})
	return result, nil
}

func (t *tables) GetSupplier(_ context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	s, ok := t.suppliers[id]
	if !ok {
		return inventory.Supplier{}, &inventory.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	return s, nil
}

func (t *tables) ListSuppliers(_ context.Context) ([]inventory.Supplier, error) {
	result := slices.Collect(maps.Values(t.suppliers))
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (t *tables) PutSupplier(_ context.Context, s inventory.Supplier) error {
	t.suppliers[s.ID] = s
	return nil
}

func (t *tables) DeleteSupplier(_ context.Context, id inventory.SupplierID) error {
	if _, ok := t.suppliers[id]; !ok {
		return &inventory.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	delete(t.suppliers, id)
	return nil
}

func (t *tables) clone() *tables {
	return &tables{
		products:  maps.Clone(t.products),
		inbound:   maps.Clone(t.inbound),
		outbound:  maps.Clone(t.outbound),
		suppliers: maps.Clone(t.suppliers),
	}
}

// sortEntries orders by timestamp then ID, both in the requested direction,
// matching the SQL stores' ORDER BY.
func sortEntries[E any](entries []E, order inventory.Order, key func(E) (int64, inventory.EntryID)) {
	sort.Slice(entries, func(i, j int) bool {
		ti, idi := key(entries[i])
		tj, idj := key(entries[j])
		if order == inventory.OrderNewestFirst {
			ti, idi, tj, idj = tj, idj, ti, idi
		}
		if ti == tj {
			return idi < idj
		}
		return ti < tj
	})
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the store's write lock.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.tables.clone()

	if err := fn(tm.tables); err != nil {
		tm.tables = snapshot
		return err
	}
	return nil
}
