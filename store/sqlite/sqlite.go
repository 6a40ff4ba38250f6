/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements inventory.TxStore and auth.UserStore on SQLite. It is the
  default store for a single-shop deployment: one file, no server.

INTERFACES IMPLEMENTED:
  inventory.Store:   Products, ledgers, suppliers
  inventory.TxStore: WithTx for atomic ledger + quantity writes
  auth.UserStore:    Accounts for login

KEY TABLES:
  products:       Catalog with quantity_on_hand
  inbound_entries / outbound_entries: Ledgers
  suppliers:      Supplier directory
  users:          Accounts and roles

QUANTITY FLOOR:
  AdjustQuantity is a single conditional UPDATE:

    UPDATE products SET quantity_on_hand = quantity_on_hand + ?
    WHERE id = ? AND quantity_on_hand + ? >= 0

  Zero affected rows means either the product is missing or the delta
  would go negative; a follow-up read tells which.

LEDGER REFERENCES:
  Ledger rows carry product_id and supplier_id without foreign keys.
  Deleting a product or supplier keeps its history; reports show the
  missing name as "-".

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order matches time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction, so transactions are serialized.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  rec := inventory.NewReconciler(store, inventory.ReconcilerOptions{})

SEE ALSO:
  - inventory/store.go: Interface definitions
  - inventory/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/inventory"
)

// timeLayout is fixed-width so that text comparison orders correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an open connection without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
		unit_cost TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_code
		ON products(code COLLATE NOCASE);

	-- Low-stock scans
	CREATE INDEX IF NOT EXISTS idx_products_quantity
		ON products(quantity_on_hand);

	CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS inbound_entries (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		total_cost TEXT NOT NULL,
		ts TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inbound_ts ON inbound_entries(ts);
	CREATE INDEX IF NOT EXISTS idx_inbound_product ON inbound_entries(product_id);

	CREATE TABLE IF NOT EXISTS outbound_entries (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		total_revenue TEXT NOT NULL,
		ts TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_name TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_outbound_ts ON outbound_entries(ts);
	CREATE INDEX IF NOT EXISTS idx_outbound_product ON outbound_entries(product_id);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(email COLLATE NOCASE);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// PRODUCTS (inventory.CatalogStore interface)
// =============================================================================

const productColumns = `id, code, name, quantity_on_hand, unit_cost, unit_price, image_url, created_at, updated_at`

func (s *Store) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q querier, id inventory.ProductID) (inventory.Product, error) {
	row := q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Product{}, &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	return p, inventory.Persistence("get product", err)
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProductByCode(ctx, s.db, code)
}

func getProductByCode(ctx context.Context, q querier, code string) (inventory.Product, error) {
	row := q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE code = ? COLLATE NOCASE", code)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Product{}, &inventory.NotFoundError{Kind: "product", ID: code}
	}
	return p, inventory.Persistence("get product by code", err)
}

func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db)
}

func listProducts(ctx context.Context, q querier) ([]inventory.Product, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY code")
	if err != nil {
		return nil, inventory.Persistence("list products", err)
	}
	defer rows.Close()

	var products []inventory.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, inventory.Persistence("list products", err)
		}
		products = append(products, p)
	}
	return products, inventory.Persistence("list products", rows.Err())
}

func (s *Store) PutProduct(ctx context.Context, p inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putProduct(ctx, s.db, p)
}

func putProduct(ctx context.Context, q querier, p inventory.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			quantity_on_hand = excluded.quantity_on_hand,
			unit_cost = excluded.unit_cost,
			unit_price = excluded.unit_price,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.Code, p.Name, p.QuantityOnHand,
		p.UnitCost.String(), p.UnitPrice.String(), p.ImageURL,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return inventory.ErrDuplicateCode
	}
	return inventory.Persistence("put product", err)
}

func (s *Store) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "products", "product", string(id))
}

// AdjustQuantity applies delta with a single conditional UPDATE.
func (s *Store) AdjustQuantity(ctx context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustQuantity(ctx, s.db, id, delta)
}

func adjustQuantity(ctx context.Context, q querier, id inventory.ProductID, delta int64) (inventory.Product, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE products
		SET quantity_on_hand = quantity_on_hand + ?, updated_at = ?
		WHERE id = ? AND quantity_on_hand + ? >= 0
	`, delta, formatTime(time.Now()), id, delta)
	if err != nil {
		return inventory.Product{}, inventory.Persistence("adjust quantity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Product{}, inventory.Persistence("adjust quantity", err)
	}

	p, err := getProduct(ctx, q, id)
	if err != nil {
		return inventory.Product{}, err
	}
	if n == 0 {
		return inventory.Product{}, &inventory.InsufficientStockError{
			ProductID: id,
			Available: p.QuantityOnHand,
			Requested: -delta,
		}
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (inventory.Product, error) {
	var (
		p                    inventory.Product
		unitCost, unitPrice  string
		createdAt, updatedAt string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.QuantityOnHand,
		&unitCost, &unitPrice, &p.ImageURL, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	p.UnitCost = parseDecimal(unitCost)
	p.UnitPrice = parseDecimal(unitPrice)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// =============================================================================
// INBOUND LEDGER
// =============================================================================

const inboundColumns = `id, product_id, supplier_id, quantity, total_cost, ts`

func (s *Store) InsertInbound(ctx context.Context, e inventory.InboundEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertInbound(ctx, s.db, e)
}

func insertInbound(ctx context.Context, q querier, e inventory.InboundEntry) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO inbound_entries ("+inboundColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.ProductID, e.SupplierID, e.Quantity, e.TotalCost.String(), formatTime(e.Timestamp),
	)
	return inventory.Persistence("insert inbound", err)
}

func (s *Store) GetInbound(ctx context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInbound(ctx, s.db, id)
}

func getInbound(ctx context.Context, q querier, id inventory.EntryID) (inventory.InboundEntry, error) {
	row := q.QueryRowContext(ctx, "SELECT "+inboundColumns+" FROM inbound_entries WHERE id = ?", id)
	e, err := scanInbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, &inventory.NotFoundError{Kind: "inbound entry", ID: string(id)}
	}
	return e, inventory.Persistence("get inbound", err)
}

func (s *Store) UpdateInbound(ctx context.Context, e inventory.InboundEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateInbound(ctx, s.db, e)
}

func updateInbound(ctx context.Context, q querier, e inventory.InboundEntry) error {
	res, err := q.ExecContext(ctx, `
		UPDATE inbound_entries
		SET product_id = ?, supplier_id = ?, quantity = ?, total_cost = ?, ts = ?
		WHERE id = ?
	`, e.ProductID, e.SupplierID, e.Quantity, e.TotalCost.String(), formatTime(e.Timestamp), e.ID)
	return affectedOne(res, err, "update inbound", "inbound entry", string(e.ID))
}

func (s *Store) DeleteInbound(ctx context.Context, id inventory.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "inbound_entries", "inbound entry", string(id))
}

func (s *Store) ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInbound(ctx, s.db, f)
}

func listInbound(ctx context.Context, q querier, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	where, args := filterClause(f)
	rows, err := q.QueryContext(ctx,
		"SELECT "+inboundColumns+" FROM inbound_entries"+where+orderClause(f), args...)
	if err != nil {
		return nil, inventory.Persistence("list inbound", err)
	}
	defer rows.Close()

	var entries []inventory.InboundEntry
	for rows.Next() {
		e, err := scanInbound(rows)
		if err != nil {
			return nil, inventory.Persistence("list inbound", err)
		}
		entries = append(entries, e)
	}
	return entries, inventory.Persistence("list inbound", rows.Err())
}

func scanInbound(row scanner) (inventory.InboundEntry, error) {
	var (
		e         inventory.InboundEntry
		totalCost string
		ts        string
	)
	if err := row.Scan(&e.ID, &e.ProductID, &e.SupplierID, &e.Quantity, &totalCost, &ts); err != nil {
		return e, err
	}
	e.TotalCost = parseDecimal(totalCost)
	e.Timestamp = parseTime(ts)
	return e, nil
}

// =============================================================================
// OUTBOUND LEDGER
// =============================================================================

const outboundColumns = `id, product_id, quantity, total_revenue, ts, actor_id, actor_name`

func (s *Store) InsertOutbound(ctx context.Context, e inventory.OutboundEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertOutbound(ctx, s.db, e)
}

func insertOutbound(ctx context.Context, q querier, e inventory.OutboundEntry) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO outbound_entries ("+outboundColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.ProductID, e.Quantity, e.TotalRevenue.String(), formatTime(e.Timestamp), e.ActorID, e.ActorName,
	)
	return inventory.Persistence("insert outbound", err)
}

func (s *Store) GetOutbound(ctx context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOutbound(ctx, s.db, id)
}

func getOutbound(ctx context.Context, q querier, id inventory.EntryID) (inventory.OutboundEntry, error) {
	row := q.QueryRowContext(ctx, "SELECT "+outboundColumns+" FROM outbound_entries WHERE id = ?", id)
	e, err := scanOutbound(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, &inventory.NotFoundError{Kind: "outbound entry", ID: string(id)}
	}
	return e, inventory.Persistence("get outbound", err)
}

func (s *Store) DeleteOutbound(ctx context.Context, id inventory.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "outbound_entries", "outbound entry", string(id))
}

func (s *Store) ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOutbound(ctx, s.db, f)
}

func listOutbound(ctx context.Context, q querier, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	where, args := filterClause(f)
	rows, err := q.QueryContext(ctx,
		"SELECT "+outboundColumns+" FROM outbound_entries"+where+orderClause(f), args...)
	if err != nil {
		return nil, inventory.Persistence("list outbound", err)
	}
	defer rows.Close()

	var entries []inventory.OutboundEntry
	for rows.Next() {
		e, err := scanOutbound(rows)
		if err != nil {
			return nil, inventory.Persistence("list outbound", err)
		}
		entries = append(entries, e)
	}
	return entries, inventory.Persistence("list outbound", rows.Err())
}

func scanOutbound(row scanner) (inventory.OutboundEntry, error) {
	var (
		e            inventory.OutboundEntry
		totalRevenue string
		ts           string
	)
	if err := row.Scan(&e.ID, &e.ProductID, &e.Quantity, &totalRevenue, &ts, &e.ActorID, &e.ActorName); err != nil {
		return e, err
	}
	e.TotalRevenue = parseDecimal(totalRevenue)
	e.Timestamp = parseTime(ts)
	return e, nil
}

func filterClause(f inventory.EntryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.From != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, formatTime(*f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(f inventory.EntryFilter) string {
	if f.Order == inventory.OrderNewestFirst {
		return " ORDER BY ts DESC, id DESC"
	}
	return " ORDER BY ts ASC, id ASC"
}

// =============================================================================
// SUPPLIERS (inventory.SupplierStore interface)
// =============================================================================

func (s *Store) GetSupplier(ctx context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSupplier(ctx, s.db, id)
}

func getSupplier(ctx context.Context, q querier, id inventory.SupplierID) (inventory.Supplier, error) {
	var sup inventory.Supplier
	err := q.QueryRowContext(ctx,
		"SELECT id, name, contact, address FROM suppliers WHERE id = ?", id,
	).Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return sup, &inventory.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	return sup, inventory.Persistence("get supplier", err)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]inventory.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSuppliers(ctx, s.db)
}

func listSuppliers(ctx context.Context, q querier) ([]inventory.Supplier, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name, contact, address FROM suppliers ORDER BY name")
	if err != nil {
		return nil, inventory.Persistence("list suppliers", err)
	}
	defer rows.Close()

	var suppliers []inventory.Supplier
	for rows.Next() {
		var sup inventory.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Contact, &sup.Address); err != nil {
			return nil, inventory.Persistence("list suppliers", err)
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, inventory.Persistence("list suppliers", rows.Err())
}

func (s *Store) PutSupplier(ctx context.Context, sup inventory.Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putSupplier(ctx, s.db, sup)
}

func putSupplier(ctx context.Context, q querier, sup inventory.Supplier) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, address)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			contact = excluded.contact,
			address = excluded.address
	`, sup.ID, sup.Name, sup.Contact, sup.Address)
	return inventory.Persistence("put supplier", err)
}

func (s *Store) DeleteSupplier(ctx context.Context, id inventory.SupplierID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRow(ctx, s.db, "suppliers", "supplier", string(id))
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.Persistence("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return inventory.Persistence("commit", sqlTx.Commit())
}

// txStore runs every call on the open transaction. It takes no locks;
// WithTx already holds the write lock.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) GetProductByCode(ctx context.Context, code string) (inventory.Product, error) {
	return getProductByCode(ctx, ts.tx, code)
}

func (ts *txStore) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return listProducts(ctx, ts.tx)
}

func (ts *txStore) PutProduct(ctx context.Context, p inventory.Product) error {
	return putProduct(ctx, ts.tx, p)
}

func (ts *txStore) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	return deleteRow(ctx, ts.tx, "products", "product", string(id))
}

func (ts *txStore) AdjustQuantity(ctx context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	return adjustQuantity(ctx, ts.tx, id, delta)
}

func (ts *txStore) InsertInbound(ctx context.Context, e inventory.InboundEntry) error {
	return insertInbound(ctx, ts.tx, e)
}

func (ts *txStore) GetInbound(ctx context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	return getInbound(ctx, ts.tx, id)
}

func (ts *txStore) UpdateInbound(ctx context.Context, e inventory.InboundEntry) error {
	return updateInbound(ctx, ts.tx, e)
}

func (ts *txStore) DeleteInbound(ctx context.Context, id inventory.EntryID) error {
	return deleteRow(ctx, ts.tx, "inbound_entries", "inbound entry", string(id))
}

func (ts *txStore) ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	return listInbound(ctx, ts.tx, f)
}

func (ts *txStore) InsertOutbound(ctx context.Context, e inventory.OutboundEntry) error {
	return insertOutbound(ctx, ts.tx, e)
}

func (ts *txStore) GetOutbound(ctx context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	return getOutbound(ctx, ts.tx, id)
}

func (ts *txStore) DeleteOutbound(ctx context.Context, id inventory.EntryID) error {
	return deleteRow(ctx, ts.tx, "outbound_entries", "outbound entry", string(id))
}

func (ts *txStore) ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	return listOutbound(ctx, ts.tx, f)
}

func (ts *txStore) GetSupplier(ctx context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	return getSupplier(ctx, ts.tx, id)
}

func (ts *txStore) ListSuppliers(ctx context.Context) ([]inventory.Supplier, error) {
	return listSuppliers(ctx, ts.tx)
}

func (ts *txStore) PutSupplier(ctx context.Context, sup inventory.Supplier) error {
	return putSupplier(ctx, ts.tx, sup)
}

func (ts *txStore) DeleteSupplier(ctx context.Context, id inventory.SupplierID) error {
	return deleteRow(ctx, ts.tx, "suppliers", "supplier", string(id))
}

// =============================================================================
// USERS (auth.UserStore interface)
// =============================================================================

func (s *Store) PutUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role,
			password_hash = excluded.password_hash
	`, u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueConstraintError(err) {
		return auth.ErrEmailTaken
	}
	return inventory.Persistence("put user", err)
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "WHERE id = ?", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, "WHERE email = ? COLLATE NOCASE", email)
}

func (s *Store) queryUser(ctx context.Context, where string, arg string) (auth.User, error) {
	var (
		u         auth.User
		role      string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, role, password_hash, created_at FROM users "+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, &inventory.NotFoundError{Kind: "user", ID: arg}
	}
	if err != nil {
		return u, inventory.Persistence("get user", err)
	}
	u.Role = inventory.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all stock data (for demo scenarios). Users are kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"inbound_entries", "outbound_entries", "products", "suppliers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return inventory.Persistence("reset "+table, err)
		}
	}
	return nil
}

// deleteRow deletes one row by id. The table name is never user input.
func deleteRow(ctx context.Context, q querier, table, kind, id string) error {
	res, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	return affectedOne(res, err, "delete "+kind, kind, id)
}

func affectedOne(res sql.Result, err error, op, kind, id string) error {
	if err != nil {
		return inventory.Persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return inventory.Persistence(op, err)
	}
	if n == 0 {
		return &inventory.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
