package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dapurkue/stockledger/factory"
	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/media"
	"github.com/dapurkue/stockledger/report"
)

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) buildReport(r *http.Request) (report.Report, error) {
	from, to, err := h.parseDays(r)
	if err != nil {
		return report.Report{}, err
	}
	return report.Build(r.Context(), h.rec, report.Filter{From: from, To: to, Location: h.loc}, h.clock())
}

// GetReport returns both movement tables with names resolved.
// GET /api/reports?from=&to=
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.buildReport(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GET /api/reports/export.csv
func (h *Handler) ExportReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, err := h.buildReport(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rep); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	name := strings.TrimSuffix(report.FileName(h.clock().In(h.loc)), ".pdf") + ".csv"
	attachment(w, "text/csv; charset=utf-8", name, buf.Bytes())
}

// ExportReportPDF renders the report through the PDF service. 503 when none
// is configured.
// GET /api/reports/export.pdf
func (h *Handler) ExportReportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		writeError(w, http.StatusServiceUnavailable, "PDF export is not configured", nil)
		return
	}
	rep, err := h.buildReport(r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	pdf, err := report.RenderPDF(r.Context(), h.pdf, rep)
	if err != nil {
		h.log.Error(r.Context(), "pdf render failed", err)
		writeError(w, http.StatusBadGateway, "PDF rendering failed", err)
		return
	}
	attachment(w, "application/pdf", report.FileName(h.clock().In(h.loc)), pdf)
}

// ExportStockCSV downloads the numbered stock table.
// GET /api/reports/stock.csv
func (h *Handler) ExportStockCSV(w http.ResponseWriter, r *http.Request) {
	products, err := h.rec.ListProducts(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteStockCSV(&buf, report.StockRows(products)); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	attachment(w, "text/csv; charset=utf-8", report.StockFileName(h.clock().In(h.loc), ".csv"), buf.Bytes())
}

// ListStock returns one page of the numbered stock table.
// GET /api/reports/stock?page=1&size=20
func (h *Handler) ListStock(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page", 1)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	size, err := intParam(r, "size", 0)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	products, err := h.rec.ListProducts(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(report.Page(report.StockRows(products), page, size)))
}

// =============================================================================
// DASHBOARD
// =============================================================================

// Dashboard returns counts and low stock, plus live counters when the event
// feed is configured. A feed failure drops the feed part only.
// GET /api/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := report.Summarize(r.Context(), h.rec)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	resp := DashboardResponse{Summary: summary}
	if h.feed != nil {
		feed, err := h.readFeed(r)
		if err != nil {
			h.log.Warn(h.log.WithField(r.Context(), "error", err.Error()), "dashboard feed unavailable")
		} else {
			resp.Feed = feed
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DashboardEvents streams stock events as server-sent events until the
// client disconnects.
// GET /api/dashboard/events
func (h *Handler) DashboardEvents(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed is not configured", nil)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.streams:
			cancel()
		case <-ctx.Done():
		}
	}()

	events, err := h.feed.Subscribe(ctx)
	if err != nil {
		h.log.Warn(h.log.WithField(r.Context(), "error", err.Error()), "dashboard subscription failed")
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable", nil)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (h *Handler) readFeed(r *http.Request) (*FeedResponse, error) {
	counters, err := h.feed.Counters(r.Context())
	if err != nil {
		return nil, err
	}
	snap, ok, err := h.feed.LowStock(r.Context())
	if err != nil {
		return nil, err
	}
	feed := &FeedResponse{Counters: counters}
	if ok {
		feed.LowStock = &LowStockResponse{Threshold: snap.Threshold, Products: nonNil(snap.Products), TakenAt: snap.TakenAt}
	}
	return feed, nil
}

// =============================================================================
// UPLOADS
// =============================================================================

// Upload stores a product image sent as multipart field "file" and returns
// its URL for Product.ImageURL.
// POST /api/uploads
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageBytes+1<<20)
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeFailure(w, r, &inventory.ValidationError{Field: "file", Reason: "is required"})
		return
	}
	defer file.Close()

	url, err := h.uploader.Upload(r.Context(), file)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{URL: url})
}

// ServeImage serves images held by the in-process store.
// GET /media/stok-barang/{name}
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	data, ok := h.images.Get(media.Folder + "/" + chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

// =============================================================================
// CATALOG IMPORT / EXPORT
// =============================================================================

// ImportCatalog loads a JSON catalog through the Reconciler. On failure the
// partial result is returned alongside the error.
// POST /api/catalog/import
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "catalog too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cj, err := factory.ParseCatalog(data)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	res, err := h.catalog.Import(r.Context(), actor(r), cj)
	if err != nil {
		status, resp := classify(err)
		resp.Details = ImportResponse{Result: res}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{Result: res})
}

// ExportCatalog returns products and suppliers in the import format.
// GET /api/catalog/export
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.rec.ListProducts(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	suppliers, err := h.rec.ListSuppliers(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ToJSON(products, suppliers))
}

// =============================================================================
// HELPERS
// =============================================================================

func attachment(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &inventory.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
