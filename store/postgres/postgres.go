/*
Package postgres implements inventory.TxStore and auth.UserStore on
PostgreSQL through a pgx connection pool.

QUANTITY FLOOR:
  AdjustQuantity is a conditional UPDATE ... RETURNING. Inside WithTx the
  product row is read with FOR UPDATE, so a concurrent outbound waits for
  the first to commit and then sees the reduced quantity.

MONEY:
  NUMERIC columns travel as text in both directions so decimals never pass
  through float64.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/inventory"
)

type Store struct {
	pool *pgxpool.Pool
}

// New opens a pool, checks connectivity and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		quantity_on_hand BIGINT NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
		unit_cost NUMERIC(18,2) NOT NULL DEFAULT 0,
		unit_price NUMERIC(18,2) NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_code ON products (lower(code));

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
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		total_cost NUMERIC(18,2) NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inbound_ts ON inbound_entries (ts);

	CREATE TABLE IF NOT EXISTS outbound_entries (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		total_revenue NUMERIC(18,2) NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		actor_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_outbound_ts ON outbound_entries (ts);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email));
	`)
	return err
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a READ COMMITTED transaction. Product reads inside it
// lock the row.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return inventory.Persistence("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&conn{q: tx, lockRows: true}); err != nil {
		return err
	}
	return inventory.Persistence("commit", tx.Commit(ctx))
}

func (s *Store) conn() *conn {
	return &conn{q: s.pool}
}

// =============================================================================
// STORE METHODS - delegate to a pool-backed conn
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	return s.conn().GetProduct(ctx, id)
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (inventory.Product, error) {
	return s.conn().GetProductByCode(ctx, code)
}

func (s *Store) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return s.conn().ListProducts(ctx)
}

func (s *Store) PutProduct(ctx context.Context, p inventory.Product) error {
	return s.conn().PutProduct(ctx, p)
}

func (s *Store) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	return s.conn().DeleteProduct(ctx, id)
}

func (s *Store) AdjustQuantity(ctx context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	return s.conn().AdjustQuantity(ctx, id, delta)
}

func (s *Store) InsertInbound(ctx context.Context, e inventory.InboundEntry) error {
	return s.conn().InsertInbound(ctx, e)
}

func (s *Store) GetInbound(ctx context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	return s.conn().GetInbound(ctx, id)
}

func (s *Store) UpdateInbound(ctx context.Context, e inventory.InboundEntry) error {
	return s.conn().UpdateInbound(ctx, e)
}

func (s *Store) DeleteInbound(ctx context.Context, id inventory.EntryID) error {
	return s.conn().DeleteInbound(ctx, id)
}

func (s *Store) ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	return s.conn().ListInbound(ctx, f)
}

func (s *Store) InsertOutbound(ctx context.Context, e inventory.OutboundEntry) error {
	return s.conn().InsertOutbound(ctx, e)
}

func (s *Store) GetOutbound(ctx context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	return s.conn().GetOutbound(ctx, id)
}

func (s *Store) DeleteOutbound(ctx context.Context, id inventory.EntryID) error {
	return s.conn().DeleteOutbound(ctx, id)
}

func (s *Store) ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	return s.conn().ListOutbound(ctx, f)
}

func (s *Store) GetSupplier(ctx context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	return s.conn().GetSupplier(ctx, id)
}

func (s *Store) ListSuppliers(ctx context.Context) ([]inventory.Supplier, error) {
	return s.conn().ListSuppliers(ctx)
}

func (s *Store) PutSupplier(ctx context.Context, sup inventory.Supplier) error {
	return s.conn().PutSupplier(ctx, sup)
}

func (s *Store) DeleteSupplier(ctx context.Context, id inventory.SupplierID) error {
	return s.conn().DeleteSupplier(ctx, id)
}

// =============================================================================
// CONN - Queries against a pool or an open transaction
// =============================================================================

type conn struct {
	q        querier
	lockRows bool
}

const productSelect = `SELECT id, code, name, quantity_on_hand, unit_cost::text, unit_price::text, image_url, created_at, updated_at FROM products`

func (c *conn) GetProduct(ctx context.Context, id inventory.ProductID) (inventory.Product, error) {
	query := productSelect + " WHERE id = $1"
	if c.lockRows {
		query += " FOR UPDATE"
	}
	p, err := scanProduct(c.q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, &inventory.NotFoundError{Kind: "product", ID: string(id)}
	}
	return p, inventory.Persistence("get product", err)
}

func (c *conn) GetProductByCode(ctx context.Context, code string) (inventory.Product, error) {
	p, err := scanProduct(c.q.QueryRow(ctx, productSelect+" WHERE lower(code) = lower($1)", code))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, &inventory.NotFoundError{Kind: "product", ID: code}
	}
	return p, inventory.Persistence("get product by code", err)
}

func (c *conn) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	rows, err := c.q.Query(ctx, productSelect+" ORDER BY code")
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

func (c *conn) PutProduct(ctx context.Context, p inventory.Product) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO products (id, code, name, quantity_on_hand, unit_cost, unit_price, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), CAST($6::text AS NUMERIC), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			quantity_on_hand = EXCLUDED.quantity_on_hand,
			unit_cost = EXCLUDED.unit_cost,
			unit_price = EXCLUDED.unit_price,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at
	`, string(p.ID), p.Code, p.Name, p.QuantityOnHand, p.UnitCost.String(), p.UnitPrice.String(),
		p.ImageURL, nonZeroTime(p.CreatedAt), nonZeroTime(p.UpdatedAt))
	if isUniqueViolation(err) {
		return inventory.ErrDuplicateCode
	}
	return inventory.Persistence("put product", err)
}

func (c *conn) DeleteProduct(ctx context.Context, id inventory.ProductID) error {
	return c.deleteRow(ctx, "products", "product", string(id))
}

func (c *conn) AdjustQuantity(ctx context.Context, id inventory.ProductID, delta int64) (inventory.Product, error) {
	row := c.q.QueryRow(ctx, `
		UPDATE products
		SET quantity_on_hand = quantity_on_hand + $2, updated_at = now()
		WHERE id = $1 AND quantity_on_hand + $2 >= 0
		RETURNING id, code, name, quantity_on_hand, unit_cost::text, unit_price::text, image_url, created_at, updated_at
	`, string(id), delta)
	p, err := scanProduct(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return inventory.Product{}, inventory.Persistence("adjust quantity", err)
	}

	current, err := c.GetProduct(ctx, id)
	if err != nil {
		return inventory.Product{}, err
	}
	return inventory.Product{}, &inventory.InsufficientStockError{
		ProductID: id,
		Available: current.QuantityOnHand,
		Requested: -delta,
	}
}

func scanProduct(row pgx.Row) (inventory.Product, error) {
	var (
		p                   inventory.Product
		id                  string
		unitCost, unitPrice string
	)
	err := row.Scan(&id, &p.Code, &p.Name, &p.QuantityOnHand, &unitCost, &unitPrice,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.ID = inventory.ProductID(id)
	p.UnitCost = parseDecimal(unitCost)
	p.UnitPrice = parseDecimal(unitPrice)
	return p, nil
}

const inboundSelect = `SELECT id, product_id, supplier_id, quantity, total_cost::text, ts FROM inbound_entries`

func (c *conn) InsertInbound(ctx context.Context, e inventory.InboundEntry) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO inbound_entries (id, product_id, supplier_id, quantity, total_cost, ts)
		VALUES ($1, $2, $3, $4, CAST($5::text AS NUMERIC), $6)
	`, string(e.ID), string(e.ProductID), string(e.SupplierID), e.Quantity, e.TotalCost.String(), e.Timestamp)
	return inventory.Persistence("insert inbound", err)
}

func (c *conn) GetInbound(ctx context.Context, id inventory.EntryID) (inventory.InboundEntry, error) {
	e, err := scanInbound(c.q.QueryRow(ctx, inboundSelect+" WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, &inventory.NotFoundError{Kind: "inbound entry", ID: string(id)}
	}
	return e, inventory.Persistence("get inbound", err)
}

func (c *conn) UpdateInbound(ctx context.Context, e inventory.InboundEntry) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE inbound_entries
		SET product_id = $2, supplier_id = $3, quantity = $4, total_cost = CAST($5::text AS NUMERIC), ts = $6
		WHERE id = $1
	`, string(e.ID), string(e.ProductID), string(e.SupplierID), e.Quantity, e.TotalCost.String(), e.Timestamp)
	return affectedOne(tag, err, "update inbound", "inbound entry", string(e.ID))
}

func (c *conn) DeleteInbound(ctx context.Context, id inventory.EntryID) error {
	return c.deleteRow(ctx, "inbound_entries", "inbound entry", string(id))
}

func (c *conn) ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error) {
	where, args := filterClause(f)
	rows, err := c.q.Query(ctx, inboundSelect+where+orderClause(f), args...)
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

func scanInbound(row pgx.Row) (inventory.InboundEntry, error) {
	var (
		e                         inventory.InboundEntry
		id, productID, supplierID string
		totalCost                 string
	)
	if err := row.Scan(&id, &productID, &supplierID, &e.Quantity, &totalCost, &e.Timestamp); err != nil {
		return e, err
	}
	e.ID = inventory.EntryID(id)
	e.ProductID = inventory.ProductID(productID)
	e.SupplierID = inventory.SupplierID(supplierID)
	e.TotalCost = parseDecimal(totalCost)
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

const outboundSelect = `SELECT id, product_id, quantity, total_revenue::text, ts, actor_id, actor_name FROM outbound_entries`

func (c *conn) InsertOutbound(ctx context.Context, e inventory.OutboundEntry) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO outbound_entries (id, product_id, quantity, total_revenue, ts, actor_id, actor_name)
		VALUES ($1, $2, $3, CAST($4::text AS NUMERIC), $5, $6, $7)
	`, string(e.ID), string(e.ProductID), e.Quantity, e.TotalRevenue.String(), e.Timestamp, e.ActorID, e.ActorName)
	return inventory.Persistence("insert outbound", err)
}

func (c *conn) GetOutbound(ctx context.Context, id inventory.EntryID) (inventory.OutboundEntry, error) {
	e, err := scanOutbound(c.q.QueryRow(ctx, outboundSelect+" WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, &inventory.NotFoundError{Kind: "outbound entry", ID: string(id)}
	}
	return e, inventory.Persistence("get outbound", err)
}

func (c *conn) DeleteOutbound(ctx context.Context, id inventory.EntryID) error {
	return c.deleteRow(ctx, "outbound_entries", "outbound entry", string(id))
}

func (c *conn) ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error) {
	where, args := filterClause(f)
	rows, err := c.q.Query(ctx, outboundSelect+where+orderClause(f), args...)
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

func scanOutbound(row pgx.Row) (inventory.OutboundEntry, error) {
	var (
		e             inventory.OutboundEntry
		id, productID string
		totalRevenue  string
	)
	if err := row.Scan(&id, &productID, &e.Quantity, &totalRevenue, &e.Timestamp, &e.ActorID, &e.ActorName); err != nil {
		return e, err
	}
	e.ID = inventory.EntryID(id)
	e.ProductID = inventory.ProductID(productID)
	e.TotalRevenue = parseDecimal(totalRevenue)
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

func filterClause(f inventory.EntryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
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

func (c *conn) GetSupplier(ctx context.Context, id inventory.SupplierID) (inventory.Supplier, error) {
	var sup inventory.Supplier
	var sid string
	err := c.q.QueryRow(ctx, "SELECT id, name, contact, address FROM suppliers WHERE id = $1", string(id)).
		Scan(&sid, &sup.Name, &sup.Contact, &sup.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return sup, &inventory.NotFoundError{Kind: "supplier", ID: string(id)}
	}
	sup.ID = inventory.SupplierID(sid)
	return sup, inventory.Persistence("get supplier", err)
}

func (c *conn) ListSuppliers(ctx context.Context) ([]inventory.Supplier, error) {
	rows, err := c.q.Query(ctx, "SELECT id, name, contact, address FROM suppliers ORDER BY name")
	if err != nil {
		return nil, inventory.Persistence("list suppliers", err)
	}
	defer rows.Close()

	var suppliers []inventory.Supplier
	for rows.Next() {
		var sup inventory.Supplier
		var sid string
		if err := rows.Scan(&sid, &sup.Name, &sup.Contact, &sup.Address); err != nil {
			return nil, inventory.Persistence("list suppliers", err)
		}
		sup.ID = inventory.SupplierID(sid)
		suppliers = append(suppliers, sup)
	}
	return suppliers, inventory.Persistence("list suppliers", rows.Err())
}

func (c *conn) PutSupplier(ctx context.Context, sup inventory.Supplier) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO suppliers (id, name, contact, address)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			contact = EXCLUDED.contact,
			address = EXCLUDED.address
	`, string(sup.ID), sup.Name, sup.Contact, sup.Address)
	return inventory.Persistence("put supplier", err)
}

func (c *conn) DeleteSupplier(ctx context.Context, id inventory.SupplierID) error {
	return c.deleteRow(ctx, "suppliers", "supplier", string(id))
}

// deleteRow deletes one row by id. The table name is never user input.
func (c *conn) deleteRow(ctx context.Context, table, kind, id string) error {
	tag, err := c.q.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	return affectedOne(tag, err, "delete "+kind, kind, id)
}

// =============================================================================
// USERS (auth.UserStore interface)
// =============================================================================

func (s *Store) PutUser(ctx context.Context, u auth.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			password_hash = EXCLUDED.password_hash
	`, u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, nonZeroTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return auth.ErrEmailTaken
	}
	return inventory.Persistence("put user", err)
}

func (s *Store) GetUser(ctx context.Context, id string) (auth.User, error) {
	return s.queryUser(ctx, "id = $1", id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.queryUser(ctx, "lower(email) = lower($1)", email)
}

func (s *Store) queryUser(ctx context.Context, where, arg string) (auth.User, error) {
	var u auth.User
	var role string
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, name, role, password_hash, created_at FROM users WHERE "+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, &inventory.NotFoundError{Kind: "user", ID: arg}
	}
	if err != nil {
		return u, inventory.Persistence("get user", err)
	}
	u.Role = inventory.Role(role)
	return u, nil
}

// Reset clears all stock data (for demo scenarios). Users are kept.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "TRUNCATE inbound_entries, outbound_entries, products, suppliers")
	return inventory.Persistence("reset", err)
}

// =============================================================================
// HELPERS
// =============================================================================

func affectedOne(tag pgconn.CommandTag, err error, op, kind, id string) error {
	if err != nil {
		return inventory.Persistence(op, err)
	}
	if tag.RowsAffected() == 0 {
		return &inventory.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nonZeroTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
