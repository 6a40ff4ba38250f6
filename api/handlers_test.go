/*
handlers_test.go - HTTP tests for the stock API

Tests for:
- Login, registration and the menu per role
- Ledger operations over HTTP, including the insufficient stock conflict
- Product lookup, adjustment and low stock queries
- Error mapping for every error kind
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dapurkue/stockledger/auth"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/inventory/store"
	"github.com/dapurkue/stockledger/media"
)

var testTokens = auth.TokenConfig{Secret: "test-secret", Issuer: "stockledger-test", TTL: time.Hour}

var wib = time.FixedZone("WIB", 7*60*60)

type testEnv struct {
	t       *testing.T
	router  http.Handler
	rec     *inventory.Reconciler
	images  *media.MemoryStore
	admin   string
	manager string
}

// newTestEnv wires a handler over a transactional memory store with one
// admin and one manager signed in. tweak may adjust the wiring.
func newTestEnv(t *testing.T, tweak func(*Deps, *RouterOptions)) *testEnv {
	t.Helper()
	ctx := context.Background()

	mem := store.NewTxMemory()
	rec := inventory.NewReconciler(mem, inventory.ReconcilerOptions{})
	svc := auth.NewService(auth.NewMemoryUsers(), testTokens).WithHashCost(bcrypt.MinCost)
	images := media.NewMemoryStore("http://stock.test/media")

	deps := Deps{
		Reconciler: rec,
		Auth:       svc,
		Uploader:   media.NewUploader(images),
		Images:     images,
		Resetter:   mem,
		Location:   wib,
		Clock:      func() time.Time { return time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC) },
	}
	opts := RouterOptions{Tokens: testTokens, CORSOrigins: []string{"*"}, Scenarios: true}
	if tweak != nil {
		tweak(&deps, &opts)
	}

	env := &testEnv{t: t, router: NewRouter(NewHandler(deps), opts), rec: rec, images: images}
	for _, u := range []auth.RegisterInput{
		{Email: "sari@dapur.test", Name: "Sari", Password: "rahasia123", Role: inventory.RoleAdmin},
		{Email: "budi@dapur.test", Name: "Budi", Password: "rahasia456", Role: inventory.RoleManager},
	} {
		_, err := svc.Register(ctx, u)
		require.NoError(t, err)
	}
	env.admin = env.login("sari@dapur.test", "rahasia123")
	env.manager = env.login("budi@dapur.test", "rahasia456")
	return env
}

func (e *testEnv) login(email, password string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: email, Password: password})
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var resp LoginResponse
	e.decode(rr, &resp)
	return resp.Token
}

// do sends body as JSON unless it is already a string.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) decode(rr *httptest.ResponseRecorder, dst any) {
	e.t.Helper()
	require.NoError(e.t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func (e *testEnv) createProduct(req CreateProductRequest) inventory.Product {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/api/products", e.admin, req)
	require.Equal(e.t, http.StatusCreated, rr.Code, rr.Body.String())
	var p inventory.Product
	e.decode(rr, &p)
	return p
}

func (e *testEnv) product(id inventory.ProductID) inventory.Product {
	e.t.Helper()
	rr := e.do(http.MethodGet, "/api/products/"+string(id), e.admin, nil)
	require.Equal(e.t, http.StatusOK, rr.Code, rr.Body.String())
	var p inventory.Product
	e.decode(rr, &p)
	return p
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin_ReturnsTokenAndMenu(t *testing.T) {
	// GIVEN: A registered manager
	// WHEN: Logging in and calling /auth/me
	// THEN: The menu shows only dashboard, stock and reports

	e := newTestEnv(t, nil)

	rr := e.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "budi@dapur.test", Password: "rahasia456"})
	require.Equal(t, http.StatusOK, rr.Code)
	var login LoginResponse
	e.decode(rr, &login)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, inventory.RoleManager, login.User.Role)

	rr = e.do(http.MethodGet, "/api/auth/me", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me MeResponse
	e.decode(rr, &me)
	assert.Equal(t, "Budi", me.User.Name)
	var keys []string
	for _, m := range me.Menu {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"dashboard", "stock", "reports"}, keys)
}

func TestLogin_Rejections(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "sari@dapur.test", Password: "salah-sandi"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(http.MethodPost, "/api/auth/login", "", `{"email": "not-an-email", "password": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(http.MethodGet, "/api/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(http.MethodGet, "/api/products", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRegister_AdminOnly(t *testing.T) {
	e := newTestEnv(t, nil)
	req := RegisterRequest{Email: "rina@dapur.test", Name: "Rina", Password: "rahasia789", Role: inventory.RoleAdmin}

	rr := e.do(http.MethodPost, "/api/auth/register", e.manager, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(http.MethodPost, "/api/auth/register", e.admin, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "rahasia789")

	rr = e.do(http.MethodPost, "/api/auth/register", e.admin, req)
	assert.Equal(t, http.StatusConflict, rr.Code)

	assert.NotEmpty(t, e.login("rina@dapur.test", "rahasia789"))
}

// =============================================================================
// LEDGER
// =============================================================================

func TestOutbound_RevenueAndInsufficientStock(t *testing.T) {
	// GIVEN: A product with 20 on hand priced at 1000
	// WHEN: Taking out 5, then 20
	// THEN: The first books revenue 5000 and leaves 15; the second is a 409
	//       that leaves quantity untouched

	e := newTestEnv(t, nil)
	p := e.createProduct(CreateProductRequest{Code: "TPG-01", Name: "Tepung Terigu", QuantityOnHand: 20, UnitPrice: decimal.NewFromInt(1000)})

	rr := e.do(http.MethodPost, "/api/outbound", e.admin, OutboundRequest{ProductID: p.ID, Quantity: 5})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var entry inventory.OutboundEntry
	e.decode(rr, &entry)
	assert.True(t, decimal.NewFromInt(5000).Equal(entry.TotalRevenue))
	assert.Equal(t, "Sari", entry.ActorName)
	assert.Equal(t, int64(15), e.product(p.ID).QuantityOnHand)

	rr = e.do(http.MethodPost, "/api/outbound", e.admin, OutboundRequest{ProductID: p.ID, Quantity: 20})
	require.Equal(t, http.StatusConflict, rr.Code)
	var conflict struct {
		Code    string                   `json:"code"`
		Details InsufficientStockDetails `json:"details"`
	}
	e.decode(rr, &conflict)
	assert.Equal(t, "insufficient_stock", conflict.Code)
	assert.Equal(t, InsufficientStockDetails{ProductID: p.ID, Available: 15, Requested: 20}, conflict.Details)
	assert.Equal(t, int64(15), e.product(p.ID).QuantityOnHand)
}

func TestInbound_TotalCostAndDayFilter(t *testing.T) {
	// GIVEN: A product costing 500
	// WHEN: Receiving 10
	// THEN: Total cost is 5000, quantity rises by 10, and the entry is
	//       listed for its day only

	e := newTestEnv(t, nil)
	p := e.createProduct(CreateProductRequest{Code: "GUL-01", Name: "Gula", QuantityOnHand: 3, UnitCost: decimal.NewFromInt(500)})
	sup := e.do(http.MethodPost, "/api/suppliers", e.admin, SupplierRequest{Name: "CV Sumber Rejeki"})
	require.Equal(t, http.StatusCreated, sup.Code)
	var supplier inventory.Supplier
	e.decode(sup, &supplier)

	rr := e.do(http.MethodPost, "/api/inbound", e.admin, InboundRequest{ProductID: p.ID, SupplierID: supplier.ID, Quantity: 10})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var entry inventory.InboundEntry
	e.decode(rr, &entry)
	assert.True(t, decimal.NewFromInt(5000).Equal(entry.TotalCost))
	assert.Equal(t, int64(13), e.product(p.ID).QuantityOnHand)

	today := time.Now().In(wib).Format(time.DateOnly)
	var listed []inventory.InboundEntry
	rr = e.do(http.MethodGet, "/api/inbound?from="+today+"&to="+today, e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	e.decode(rr, &listed)
	assert.Len(t, listed, 1)

	rr = e.do(http.MethodGet, "/api/inbound?from=2001-01-01&to=2001-01-02", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = e.do(http.MethodGet, "/api/inbound?from=11/03/2025", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = e.do(http.MethodGet, "/api/inbound?from=2025-03-12&to=2025-03-11", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEntryEditsLeaveQuantityAlone(t *testing.T) {
	// GIVEN: A receipt of 10 and a consumption of 4
	// WHEN: The receipt is edited to 7 and both entries are deleted
	// THEN: Quantity on hand keeps the value the original entries produced

	e := newTestEnv(t, nil)
	p := e.createProduct(CreateProductRequest{Code: "MTG-01", Name: "Mentega"})

	rr := e.do(http.MethodPost, "/api/inbound", e.admin, InboundRequest{ProductID: p.ID, Quantity: 10})
	require.Equal(t, http.StatusCreated, rr.Code)
	var in inventory.InboundEntry
	e.decode(rr, &in)
	rr = e.do(http.MethodPost, "/api/outbound", e.admin, OutboundRequest{ProductID: p.ID, Quantity: 4})
	require.Equal(t, http.StatusCreated, rr.Code)
	var out inventory.OutboundEntry
	e.decode(rr, &out)

	rr = e.do(http.MethodPut, "/api/inbound/"+string(in.ID), e.admin, InboundRequest{ProductID: p.ID, Quantity: 7})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var edited inventory.InboundEntry
	e.decode(rr, &edited)
	assert.Equal(t, int64(7), edited.Quantity)

	var fetched inventory.InboundEntry
	e.decode(e.do(http.MethodGet, "/api/inbound/"+string(in.ID), e.manager, nil), &fetched)
	assert.Equal(t, int64(7), fetched.Quantity)
	var fetchedOut inventory.OutboundEntry
	e.decode(e.do(http.MethodGet, "/api/outbound/"+string(out.ID), e.manager, nil), &fetchedOut)
	assert.Equal(t, "Sari", fetchedOut.ActorName)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/inbound/"+string(in.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/outbound/"+string(out.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/outbound/"+string(out.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/inbound/"+string(in.ID), e.admin, nil).Code)

	assert.Equal(t, int64(6), e.product(p.ID).QuantityOnHand)
}

func TestLedger_ValidationAndNotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.createProduct(CreateProductRequest{Code: "TLR-01", Name: "Telur", QuantityOnHand: 5})

	cases := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"zero quantity", "/api/outbound", OutboundRequest{ProductID: p.ID, Quantity: 0}, http.StatusBadRequest},
		{"negative inbound", "/api/inbound", InboundRequest{ProductID: p.ID, Quantity: -2}, http.StatusBadRequest},
		{"missing product id", "/api/outbound", OutboundRequest{Quantity: 1}, http.StatusBadRequest},
		{"unknown field", "/api/outbound", `{"productId": "x", "quantity": 1, "qty": 2}`, http.StatusBadRequest},
		{"empty body", "/api/outbound", "", http.StatusBadRequest},
		{"unknown product", "/api/outbound", OutboundRequest{ProductID: "nope", Quantity: 1}, http.StatusNotFound},
		{"unknown product inbound", "/api/inbound", InboundRequest{ProductID: "nope", Quantity: 1}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(http.MethodPost, tc.path, e.admin, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
	assert.Equal(t, int64(5), e.product(p.ID).QuantityOnHand)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestProducts_LookupAdjustAndDuplicates(t *testing.T) {
	e := newTestEnv(t, nil)
	p := e.createProduct(CreateProductRequest{Code: "CKL-01", Name: "Cokelat", QuantityOnHand: 8, UnitPrice: decimal.NewFromInt(28000)})

	rr := e.do(http.MethodGet, "/api/products/code/ckl-01", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var found inventory.Product
	e.decode(rr, &found)
	assert.Equal(t, p.ID, found.ID)

	rr = e.do(http.MethodPost, "/api/products", e.admin, CreateProductRequest{Code: "ckl-01", Name: "Lagi"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = e.do(http.MethodPatch, "/api/products/"+string(p.ID), e.admin, `{"quantityOnHand": 30, "unitPrice": "30000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	adjusted := e.product(p.ID)
	assert.Equal(t, int64(30), adjusted.QuantityOnHand)
	assert.True(t, decimal.NewFromInt(30000).Equal(adjusted.UnitPrice))
	assert.Equal(t, "Cokelat", adjusted.Name)

	rr = e.do(http.MethodPatch, "/api/products/"+string(p.ID), e.admin, `{"quantityOnHand": -1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/products/"+string(p.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/products/"+string(p.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/products/code/CKL-01", e.admin, nil).Code)
}

func TestLowStock_ThresholdParameter(t *testing.T) {
	e := newTestEnv(t, nil)
	e.createProduct(CreateProductRequest{Code: "A", Name: "Alpha", QuantityOnHand: 3})
	e.createProduct(CreateProductRequest{Code: "B", Name: "Beta", QuantityOnHand: 9})
	e.createProduct(CreateProductRequest{Code: "C", Name: "Gamma", QuantityOnHand: 10})

	var low []inventory.Product
	rr := e.do(http.MethodGet, "/api/products/low-stock", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	e.decode(rr, &low)
	assert.Len(t, low, 3, "the default threshold of 10 is inclusive")

	rr = e.do(http.MethodGet, "/api/products/low-stock?threshold=4", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	e.decode(rr, &low)
	require.Len(t, low, 1)
	assert.Equal(t, "Alpha", low[0].Name)

	rr = e.do(http.MethodGet, "/api/products/low-stock?threshold=0", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = e.do(http.MethodGet, "/api/products/low-stock?threshold=banyak", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSuppliers_CRUD(t *testing.T) {
	e := newTestEnv(t, nil)

	rr := e.do(http.MethodPost, "/api/suppliers", e.admin, SupplierRequest{Name: "UD Makmur", Contact: "0813"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var s inventory.Supplier
	e.decode(rr, &s)

	rr = e.do(http.MethodPut, "/api/suppliers/"+string(s.ID), e.admin, SupplierRequest{Name: "UD Makmur Jaya", Address: "Bandung"})
	require.Equal(t, http.StatusOK, rr.Code)

	var list []inventory.Supplier
	e.decode(e.do(http.MethodGet, "/api/suppliers", e.manager, nil), &list)
	require.Len(t, list, 1)
	assert.Equal(t, "UD Makmur Jaya", list[0].Name)
	assert.Equal(t, "Bandung", list[0].Address)

	var got inventory.Supplier
	e.decode(e.do(http.MethodGet, "/api/suppliers/"+string(s.ID), e.manager, nil), &got)
	assert.Equal(t, "UD Makmur Jaya", got.Name)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/api/suppliers", e.admin, SupplierRequest{}).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/suppliers/"+string(s.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/api/suppliers/"+string(s.ID), e.admin, SupplierRequest{Name: "X"}).Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &inventory.NotFoundError{Kind: "product", ID: "p"}, http.StatusNotFound, "not_found"},
		{"insufficient", &inventory.InsufficientStockError{ProductID: "p", Available: 1, Requested: 2}, http.StatusConflict, "insufficient_stock"},
		{"wrapped insufficient", fmt.Errorf("outbound[0]: %w", inventory.ErrInsufficientStock), http.StatusConflict, "insufficient_stock"},
		{"validation", &inventory.ValidationError{Field: "quantity", Reason: "must be greater than 0"}, http.StatusBadRequest, "validation"},
		{"duplicate", inventory.ErrDuplicateCode, http.StatusConflict, "duplicate_code"},
		{"email taken", auth.ErrEmailTaken, http.StatusConflict, "email_taken"},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"persistence", inventory.Persistence("get product", errors.New("disk")), http.StatusServiceUnavailable, "persistence"},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}

func TestClassify_InconsistentWriteIsReported(t *testing.T) {
	err := &inventory.PersistenceError{Op: "record outbound", Inconsistent: true, Err: errors.New("timeout")}
	status, resp := classify(err)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, PersistenceDetails{Inconsistent: true}, resp.Details)
	assert.NotContains(t, resp.Error, "timeout")
}

// =============================================================================
// ROUTER
// =============================================================================

func TestHealthzAndSecurityHeaders(t *testing.T) {
	e := newTestEnv(t, nil)
	rr := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, func(_ *Deps, o *RouterOptions) { o.RateLimit = 3 })

	// Two logins during setup already counted against this client.
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, e.do(http.MethodGet, "/healthz", "", nil).Code)
}
