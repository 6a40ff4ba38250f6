/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the Reconciler via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the inventory package. The caller's
  identity comes from the auth middleware and is passed explicitly into
  every mutating Reconciler call.

ENDPOINTS:
  Auth:
    POST   /api/auth/login             Email/password login, returns a token
    POST   /api/auth/register          Create an account (admin)
    GET    /api/auth/me                Current user and navigation menu

  Products:
    GET    /api/products               List products
    POST   /api/products               Create product with opening stock
    GET    /api/products/low-stock     Products at or below ?threshold= (default 10)
    GET    /api/products/code/{code}   Lookup by code (barcode scan)
    GET    /api/products/{id}          Get product
    PATCH  /api/products/{id}          Adjust catalog fields, quantity included
    DELETE /api/products/{id}          Delete product

  Suppliers:
    GET/POST /api/suppliers, GET/PUT/DELETE /api/suppliers/{id}

  Ledger:
    GET    /api/inbound?from=&to=      Goods received, newest first
    POST   /api/inbound                Record a receipt (+quantity)
    GET    /api/inbound/{id}           Get a receipt
    PUT    /api/inbound/{id}           Rewrite a receipt
    DELETE /api/inbound/{id}           Remove a receipt
    GET    /api/outbound?from=&to=     Goods consumed, newest first
    POST   /api/outbound               Record a consumption (-quantity)
    GET    /api/outbound/{id}          Get a consumption
    DELETE /api/outbound/{id}          Remove a consumption

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or bad credentials
  - 404: Product, supplier or entry not found
  - 409: Insufficient stock, duplicate product code, email taken
  - 503: Store failure; details.inconsistent reports a partial write
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - reports.go: Reports, dashboard, uploads and catalog import
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/factory"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/logging"
	"github.com/dapurkue/stockledger/media"
	"github.com/dapurkue/stockledger/notify"
	"github.com/dapurkue/stockledger/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DashboardFeed is the live event feed behind the dashboard.
type DashboardFeed interface {
	Counters(ctx context.Context) (map[inventory.EventKind]int64, error)
	LowStock(ctx context.Context) (notify.LowStockSnapshot, bool, error)
	Subscribe(ctx context.Context) (<-chan inventory.StockEvent, error)
}

// ImageSource serves images kept in process.
type ImageSource interface {
	Get(key string) ([]byte, bool)
}

// Resetter clears stock data before a scenario loads.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Deps are the collaborators a Handler needs. Reconciler and Auth are
// required; the rest switch features on when set.
type Deps struct {
	Reconciler *inventory.Reconciler
	Auth       *auth.Service
	Uploader   *media.Uploader
	Images     ImageSource
	PDF        report.PDFRenderer
	Feed       DashboardFeed
	Resetter   Resetter
	Location   *time.Location
	Logger     *logging.Logger
	Clock      func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	rec      *inventory.Reconciler
	auth     *auth.Service
	catalog  *factory.CatalogFactory
	uploader *media.Uploader
	images   ImageSource
	pdf      report.PDFRenderer
	feed     DashboardFeed
	resetter Resetter
	loc      *time.Location
	log      *logging.Logger
	clock    func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string

	// streams is closed by CloseStreams to end open event streams.
	streams   chan struct{}
	closeOnce sync.Once
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		rec:      d.Reconciler,
		auth:     d.Auth,
		catalog:  factory.NewCatalogFactory(d.Reconciler),
		uploader: d.Uploader,
		images:   d.Images,
		pdf:      d.PDF,
		feed:     d.Feed,
		resetter: d.Resetter,
		loc:      d.Location,
		log:      d.Logger,
		clock:    d.Clock,
		streams:  make(chan struct{}),
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.log == nil {
		h.log = logging.Nop()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	return h
}

// CloseStreams ends every open dashboard event stream. http.Server.Shutdown
// does not cancel running requests, so register it with RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.streams) })
}

// actor is set by auth.Authenticate on every route that calls it.
func actor(r *http.Request) inventory.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login checks credentials and returns a bearer token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	token, u, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: toUserResponse(u), Menu: auth.Menu(u.Role)})
}

// Register creates an account.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	u, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.log.Info(h.log.WithField(r.Context(), "user_id", u.ID), "user registered")
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

// Me returns the signed-in user and the menu for their role.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	u, err := h.auth.User(r.Context(), a.ID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{User: toUserResponse(u), Menu: auth.Menu(u.Role)})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.rec.ListProducts(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	p, err := h.rec.CreateProduct(r.Context(), actor(r), req.product())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.rec.GetProduct(r.Context(), inventory.ProductID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetProductByCode resolves a scanned barcode to a product.
// GET /api/products/code/{code}
func (h *Handler) GetProductByCode(w http.ResponseWriter, r *http.Request) {
	p, err := h.rec.FindProductByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AdjustProduct edits catalog fields directly. Quantity set here bypasses
// the ledger.
// PATCH /api/products/{id}
func (h *Handler) AdjustProduct(w http.ResponseWriter, r *http.Request) {
	var req AdjustProductRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	p, err := h.rec.AdjustCatalog(r.Context(), actor(r), inventory.ProductID(chi.URLParam(r, "id")), req.fields())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.DeleteProduct(r.Context(), actor(r), inventory.ProductID(chi.URLParam(r, "id"))); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLowStock returns products at or below the threshold.
// GET /api/products/low-stock?threshold=5
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.rec.Threshold()
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			h.writeFailure(w, r, &inventory.ValidationError{Field: "threshold", Reason: "must be a non-negative integer"})
			return
		}
		threshold = n
	}
	seq, err := h.rec.ListBelowThreshold(r.Context(), threshold)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(slices.Collect(seq)))
}

// =============================================================================
// SUPPLIER HANDLERS
// =============================================================================

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.rec.ListSuppliers(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(suppliers))
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req SupplierRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	s, err := h.rec.CreateSupplier(r.Context(), actor(r), req.supplier())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	s, err := h.rec.GetSupplier(r.Context(), inventory.SupplierID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req SupplierRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	s, err := h.rec.UpdateSupplier(r.Context(), actor(r), inventory.SupplierID(chi.URLParam(r, "id")), req.supplier())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.DeleteSupplier(r.Context(), actor(r), inventory.SupplierID(chi.URLParam(r, "id"))); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListInbound returns receipts between ?from= and ?to= (YYYY-MM-DD, whole
// days in the report time zone).
// GET /api/inbound
func (h *Handler) ListInbound(w http.ResponseWriter, r *http.Request) {
	f, err := h.dayFilter(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	entries, err := h.rec.ListInbound(r.Context(), f)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// RecordInbound adds received goods to stock.
// POST /api/inbound
func (h *Handler) RecordInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	entry, err := h.rec.RecordInbound(r.Context(), actor(r), req.input())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// UpdateInbound rewrites a receipt. Quantity on hand follows only when the
// server runs with STOCK_RECONCILE_EDITS.
// PUT /api/inbound/{id}
func (h *Handler) UpdateInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	entry, err := h.rec.UpdateInbound(r.Context(), actor(r), inventory.EntryID(chi.URLParam(r, "id")), req.input())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) GetInbound(w http.ResponseWriter, r *http.Request) {
	entry, err := h.rec.GetInbound(r.Context(), inventory.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteInbound(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.DeleteInbound(r.Context(), actor(r), inventory.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/outbound
func (h *Handler) ListOutbound(w http.ResponseWriter, r *http.Request) {
	f, err := h.dayFilter(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	entries, err := h.rec.ListOutbound(r.Context(), f)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// RecordOutbound takes goods out of stock. 409 when stock is short.
// POST /api/outbound
func (h *Handler) RecordOutbound(w http.ResponseWriter, r *http.Request) {
	var req OutboundRequest
	if err := decode(w, r, &req); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	entry, err := h.rec.RecordOutbound(r.Context(), actor(r), req.input())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) GetOutbound(w http.ResponseWriter, r *http.Request) {
	entry, err := h.rec.GetOutbound(r.Context(), inventory.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteOutbound(w http.ResponseWriter, r *http.Request) {
	if err := h.rec.DeleteOutbound(r.Context(), actor(r), inventory.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseDays reads ?from= and ?to= as calendar dates in the report zone.
func (h *Handler) parseDays(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if from, err = h.parseDay("from", q.Get("from")); err != nil {
		return
	}
	if to, err = h.parseDay("to", q.Get("to")); err != nil {
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		err = &inventory.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	return
}

func (h *Handler) parseDay(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
	if err != nil {
		return time.Time{}, &inventory.ValidationError{Field: field, Reason: "must be a date (YYYY-MM-DD)"}
	}
	return t, nil
}

func (h *Handler) dayFilter(r *http.Request) (inventory.EntryFilter, error) {
	from, to, err := h.parseDays(r)
	if err != nil {
		return inventory.EntryFilter{}, err
	}
	f := inventory.DayRange(from, to, h.loc)
	f.Order = inventory.OrderNewestFirst
	return f, nil
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
