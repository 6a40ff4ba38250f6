package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkue/stockledger/factory"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/notify"
	"github.com/dapurkue/stockledger/report"
)

type fakePDF struct {
	html []byte
	err  error
}

func (f *fakePDF) RenderPDF(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeFeed struct {
	counters map[inventory.EventKind]int64
	snap     *notify.LowStockSnapshot
	events   []inventory.StockEvent
	err      error
}

func (f fakeFeed) Counters(context.Context) (map[inventory.EventKind]int64, error) {
	return f.counters, f.err
}

func (f fakeFeed) LowStock(context.Context) (notify.LowStockSnapshot, bool, error) {
	if f.snap == nil {
		return notify.LowStockSnapshot{}, false, f.err
	}
	return *f.snap, true, f.err
}

// Subscribe replays the canned events, then ends the stream.
func (f fakeFeed) Subscribe(context.Context) (<-chan inventory.StockEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan inventory.StockEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// seedMovements creates flour (20 @ 500/1000), receives 10 and uses 5.
func seedMovements(e *testEnv) inventory.Product {
	e.t.Helper()
	p := e.createProduct(CreateProductRequest{
		Code: "TPG-01", Name: "Tepung Terigu", QuantityOnHand: 20,
		UnitCost: decimal.NewFromInt(500), UnitPrice: decimal.NewFromInt(1000),
	})
	require.Equal(e.t, http.StatusCreated, e.do(http.MethodPost, "/api/inbound", e.admin, InboundRequest{ProductID: p.ID, Quantity: 10}).Code)
	require.Equal(e.t, http.StatusCreated, e.do(http.MethodPost, "/api/outbound", e.admin, OutboundRequest{ProductID: p.ID, Quantity: 5}).Code)
	return p
}

func TestReport_JSONAndCSV(t *testing.T) {
	// GIVEN: One receipt and one consumption
	// WHEN: Fetching the report and its CSV export
	// THEN: Names and totals are resolved and the CSV downloads with the
	//       dated file name

	e := newTestEnv(t, nil)
	seedMovements(e)

	rr := e.do(http.MethodGet, "/api/reports", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rep report.Report
	e.decode(rr, &rep)
	require.Len(t, rep.Inbound, 1)
	require.Len(t, rep.Outbound, 1)
	assert.Equal(t, "Tepung Terigu", rep.Outbound[0].ProductName)
	assert.Equal(t, report.Unknown, rep.Inbound[0].SupplierName)
	assert.True(t, decimal.NewFromInt(5000).Equal(rep.Totals.OutboundRevenue))

	rr = e.do(http.MethodGet, "/api/reports/export.csv", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="Laporan-Barang-2025-03-11.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Contains(t, rr.Body.String(), "Barang Masuk")

	rr = e.do(http.MethodGet, "/api/reports?from=2001-01-01&to=2001-01-01", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	e.decode(rr, &rep)
	assert.Empty(t, rep.Inbound)
}

func TestReport_PDF(t *testing.T) {
	e := newTestEnv(t, nil)
	rr := e.do(http.MethodGet, "/api/reports/export.pdf", e.manager, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	pdf := &fakePDF{}
	e = newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.PDF = pdf })
	seedMovements(e)

	rr = e.do(http.MethodGet, "/api/reports/export.pdf", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Laporan-Barang-2025-03-11.pdf"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "%PDF"))
	assert.Contains(t, string(pdf.html), "Rp 5.000")

	pdf.err = errors.New("gotenberg down")
	rr = e.do(http.MethodGet, "/api/reports/export.pdf", e.manager, nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestStockReport(t *testing.T) {
	e := newTestEnv(t, nil)
	seedMovements(e)
	e.createProduct(CreateProductRequest{Code: "GUL-01", Name: "Gula Pasir", QuantityOnHand: 4})

	rr := e.do(http.MethodGet, "/api/reports/stock.csv", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="Laporan_StokBarang_2025-03-11.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Contains(t, rr.Body.String(), "TPG-01,Tepung Terigu,25,500.00,1000.00")

	var page []report.StockRow
	rr = e.do(http.MethodGet, "/api/reports/stock?page=2&size=1", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	e.decode(rr, &page)
	require.Len(t, page, 1)
	assert.Equal(t, 2, page[0].No)

	rr = e.do(http.MethodGet, "/api/reports/stock?page=-1", e.manager, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDashboard(t *testing.T) {
	// GIVEN: A store with one low product and a live feed
	// WHEN: Fetching the dashboard
	// THEN: Counts come from the store and counters from the feed

	taken := time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC)
	feed := fakeFeed{
		counters: map[inventory.EventKind]int64{inventory.EventOutboundRecorded: 7},
		snap:     &notify.LowStockSnapshot{Threshold: 10, TakenAt: taken},
	}
	e := newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Feed = feed })
	seedMovements(e)
	e.createProduct(CreateProductRequest{Code: "VNL-01", Name: "Vanili", QuantityOnHand: 2})

	rr := e.do(http.MethodGet, "/api/dashboard", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp DashboardResponse
	e.decode(rr, &resp)
	assert.Equal(t, 2, resp.Summary.ProductCount)
	assert.Equal(t, 1, resp.Summary.InboundCount)
	assert.Equal(t, 1, resp.Summary.OutboundCount)
	require.Len(t, resp.Summary.LowStock, 1)
	assert.Equal(t, "Vanili", resp.Summary.LowStock[0].Name)

	require.NotNil(t, resp.Feed)
	assert.Equal(t, int64(7), resp.Feed.Counters[inventory.EventOutboundRecorded])
	require.NotNil(t, resp.Feed.LowStock)
	assert.True(t, taken.Equal(resp.Feed.LowStock.TakenAt))
	assert.NotNil(t, resp.Feed.LowStock.Products)
}

func TestDashboard_FeedFailureKeepsSummary(t *testing.T) {
	e := newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Feed = fakeFeed{err: errors.New("redis down")} })
	rr := e.do(http.MethodGet, "/api/dashboard", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp DashboardResponse
	e.decode(rr, &resp)
	assert.Nil(t, resp.Feed)
	assert.Equal(t, inventory.DefaultLowStockThreshold, resp.Summary.Threshold)
}

func TestDashboardEvents_StreamsFeed(t *testing.T) {
	// GIVEN: A feed holding two stock events
	// WHEN: A manager opens the event stream
	// THEN: Each event arrives as a named server-sent event

	feed := fakeFeed{events: []inventory.StockEvent{
		{Kind: inventory.EventOutboundRecorded, ProductID: "p-1", Delta: -5, QuantityOnHand: 15},
		{Kind: inventory.EventLowStock, ProductID: "p-2", QuantityOnHand: 2},
	}}
	e := newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Feed = feed })

	rr := e.do(http.MethodGet, "/api/dashboard/events", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "event: "+string(inventory.EventOutboundRecorded)+"\ndata: ")
	assert.Contains(t, body, `"productId":"p-2"`)
	assert.Equal(t, 2, strings.Count(body, "\n\n"))
}

func TestDashboardEvents_Unavailable(t *testing.T) {
	e := newTestEnv(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodGet, "/api/dashboard/events", e.manager, nil).Code)

	e = newTestEnv(t, func(d *Deps, _ *RouterOptions) { d.Feed = fakeFeed{err: errors.New("redis down")} })
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodGet, "/api/dashboard/events", e.manager, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/dashboard/events", "", nil).Code)
}

// streamFeed keeps a subscription open until its context ends.
type streamFeed struct {
	fakeFeed
}

func (streamFeed) Subscribe(ctx context.Context) (<-chan inventory.StockEvent, error) {
	ch := make(chan inventory.StockEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestDashboardEvents_CloseStreamsEndsOpenStreams(t *testing.T) {
	h := NewHandler(Deps{Feed: streamFeed{}})
	rr := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.DashboardEvents(rr, httptest.NewRequest(http.MethodGet, "/api/dashboard/events", nil))
	}()

	h.CloseStreams()
	h.CloseStreams()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after CloseStreams")
	}
	assert.Equal(t, http.StatusOK, rr.Code)
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "kue.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUpload_StoresAndServesImage(t *testing.T) {
	// GIVEN: A PNG sent as multipart field "file"
	// WHEN: Uploading it
	// THEN: The returned URL points into stok-barang/ and the image is served

	e := newTestEnv(t, nil)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	body, contentType := multipartImage(t, "file", png)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+e.admin)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp UploadResponse
	e.decode(rr, &resp)
	require.True(t, strings.HasPrefix(resp.URL, "http://stock.test/media/stok-barang/"), resp.URL)
	assert.True(t, strings.HasSuffix(resp.URL, ".png"))

	name := resp.URL[strings.LastIndex(resp.URL, "/")+1:]
	rr = e.do(http.MethodGet, "/media/stok-barang/"+name, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, png, rr.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/media/stok-barang/missing.png", "", nil).Code)
}

func TestUpload_Rejections(t *testing.T) {
	e := newTestEnv(t, nil)

	send := func(field string, data []byte) int {
		body, contentType := multipartImage(t, field, data)
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+e.admin)
		rr := httptest.NewRecorder()
		e.router.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("file", []byte("just some text, not an image")))
	assert.Equal(t, http.StatusBadRequest, send("image", []byte("\x89PNG\r\n\x1a\n")))
}

func TestCatalog_ImportAndExport(t *testing.T) {
	e := newTestEnv(t, nil)

	doc := `{
	  "suppliers": [{"key": "sumber", "name": "CV Sumber Rejeki"}],
	  "products": [{"code": "TPG-01", "name": "Tepung Terigu", "stock": 20, "unit_cost": 500, "unit_price": 1000}],
	  "inbound": [{"product_code": "TPG-01", "supplier": "sumber", "quantity": 10}],
	  "outbound": [{"product_code": "TPG-01", "quantity": 5}]
	}`
	rr := e.do(http.MethodPost, "/api/catalog/import", e.admin, doc)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var imported ImportResponse
	e.decode(rr, &imported)
	assert.Equal(t, factory.ImportResult{SuppliersCreated: 1, ProductsCreated: 1, InboundRecorded: 1, OutboundRecorded: 1}, imported.Result)

	rr = e.do(http.MethodGet, "/api/catalog/export", e.manager, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var exported factory.CatalogJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &exported))
	require.Len(t, exported.Products, 1)
	assert.Equal(t, int64(25), exported.Products[0].Stock)

	rr = e.do(http.MethodPost, "/api/catalog/import", e.admin, `{"products": [`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCatalog_ImportFailureReportsProgress(t *testing.T) {
	e := newTestEnv(t, nil)
	doc := `{
	  "products": [{"code": "GUL-01", "name": "Gula", "stock": 2}],
	  "outbound": [{"product_code": "GUL-01", "quantity": 3}]
	}`
	rr := e.do(http.MethodPost, "/api/catalog/import", e.admin, doc)
	require.Equal(t, http.StatusConflict, rr.Code)

	var resp struct {
		Code    string         `json:"code"`
		Details ImportResponse `json:"details"`
	}
	e.decode(rr, &resp)
	assert.Equal(t, "insufficient_stock", resp.Code)
	assert.Equal(t, 1, resp.Details.Result.ProductsCreated)
	assert.Equal(t, 0, resp.Details.Result.OutboundRecorded)
}
