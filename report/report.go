/*
report.go - Read-only projections of the catalog and ledgers

PURPOSE:
  Builds the movement report (goods in, goods out) for a day range and the
  stock report for the catalog. Nothing here writes.

NAME RESOLUTION:
  Entries reference products and suppliers by id. A reference that no
  longer resolves (deleted product, unknown supplier) shows as "-".
  An outbound entry without an actor name shows as "-" as well.

SEE ALSO:
  - export.go: CSV and HTML rendering
  - gotenberg.go: PDF conversion
*/
package report

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dapurkue/stockledger/inventory"
)

// Unknown is shown for references that do not resolve.
const Unknown = "-"

// Source is the read side of the reconciler.
type Source interface {
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	ListSuppliers(ctx context.Context) ([]inventory.Supplier, error)
	ListInbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.InboundEntry, error)
	ListOutbound(ctx context.Context, f inventory.EntryFilter) ([]inventory.OutboundEntry, error)
}

// Filter selects whole calendar days in Location. Zero bounds are open;
// From == To selects a single day.
type Filter struct {
	From     time.Time
	To       time.Time
	Location *time.Location
}

func (f Filter) entryFilter() inventory.EntryFilter {
	ef := inventory.DayRange(f.From, f.To, f.Location)
	ef.Order = inventory.OrderNewestFirst
	return ef
}

type InboundRow struct {
	No           int               `json:"no"`
	EntryID      inventory.EntryID `json:"entryId"`
	ProductName  string            `json:"productName"`
	Quantity     int64             `json:"quantity"`
	SupplierName string            `json:"supplierName"`
	TotalCost    decimal.Decimal   `json:"totalCost"`
	Timestamp    time.Time         `json:"timestamp"`
}

type OutboundRow struct {
	No           int               `json:"no"`
	EntryID      inventory.EntryID `json:"entryId"`
	ProductName  string            `json:"productName"`
	Quantity     int64             `json:"quantity"`
	TotalRevenue decimal.Decimal   `json:"totalRevenue"`
	Timestamp    time.Time         `json:"timestamp"`
	ActorName    string            `json:"actorName"`
}

type Totals struct {
	InboundQuantity  int64           `json:"inboundQuantity"`
	InboundCost      decimal.Decimal `json:"inboundCost"`
	OutboundQuantity int64           `json:"outboundQuantity"`
	OutboundRevenue  decimal.Decimal `json:"outboundRevenue"`
}

// Report is the movement report. Rows are newest first.
type Report struct {
	From        time.Time     `json:"from,omitzero"`
	To          time.Time     `json:"to,omitzero"`
	Location    string        `json:"location"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Inbound     []InboundRow  `json:"inbound"`
	Outbound    []OutboundRow `json:"outbound"`
	Totals      Totals        `json:"totals"`
}

// Build reads the four sources concurrently and assembles a Report.
func Build(ctx context.Context, src Source, f Filter, now time.Time) (Report, error) {
	ef := f.entryFilter()

	var (
		products  []inventory.Product
		suppliers []inventory.Supplier
		inbound   []inventory.InboundEntry
		outbound  []inventory.OutboundEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = src.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		suppliers, err = src.ListSuppliers(gctx)
		return err
	})
	g.Go(func() (err error) {
		inbound, err = src.ListInbound(gctx, ef)
		return err
	})
	g.Go(func() (err error) {
		outbound, err = src.ListOutbound(gctx, ef)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	rep := Report{
		From:        f.From,
		To:          f.To,
		Location:    loc.String(),
		GeneratedAt: now,
		Inbound:     make([]InboundRow, 0, len(inbound)),
		Outbound:    make([]OutboundRow, 0, len(outbound)),
		Totals: Totals{
			InboundCost:     decimal.Zero,
			OutboundRevenue: decimal.Zero,
		},
	}

	productNames := make(map[inventory.ProductID]string, len(products))
	for _, p := range products {
		productNames[p.ID] = p.Name
	}
	supplierNames := make(map[inventory.SupplierID]string, len(suppliers))
	for _, s := range suppliers {
		supplierNames[s.ID] = s.Name
	}

	for i, e := range inbound {
		rep.Inbound = append(rep.Inbound, InboundRow{
			No:           i + 1,
			EntryID:      e.ID,
			ProductName:  orUnknown(productNames[e.ProductID]),
			Quantity:     e.Quantity,
			SupplierName: orUnknown(supplierNames[e.SupplierID]),
			TotalCost:    e.TotalCost,
			Timestamp:    e.Timestamp.In(loc),
		})
		rep.Totals.InboundQuantity += e.Quantity
		rep.Totals.InboundCost = rep.Totals.InboundCost.Add(e.TotalCost)
	}
	for i, e := range outbound {
		rep.Outbound = append(rep.Outbound, OutboundRow{
			No:           i + 1,
			EntryID:      e.ID,
			ProductName:  orUnknown(productNames[e.ProductID]),
			Quantity:     e.Quantity,
			TotalRevenue: e.TotalRevenue,
			Timestamp:    e.Timestamp.In(loc),
			ActorName:    orUnknown(e.ActorName),
		})
		rep.Totals.OutboundQuantity += e.Quantity
		rep.Totals.OutboundRevenue = rep.Totals.OutboundRevenue.Add(e.TotalRevenue)
	}
	return rep, nil
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

// =============================================================================
// STOCK REPORT
// =============================================================================

type StockRow struct {
	No        int             `json:"no"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Stock     int64           `json:"stock"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// StockRows numbers products in the order given.
func StockRows(products []inventory.Product) []StockRow {
	rows := make([]StockRow, 0, len(products))
	for i, p := range products {
		rows = append(rows, StockRow{
			No:        i + 1,
			Code:      p.Code,
			Name:      p.Name,
			Stock:     p.QuantityOnHand,
			UnitCost:  p.UnitCost,
			UnitPrice: p.UnitPrice,
		})
	}
	return rows
}

// Page returns the 1-based page of rows. Out of range pages are empty.
func Page[T any](rows []T, page, size int) []T {
	if size <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(rows) {
		return []T{}
	}
	return rows[start:min(start+size, len(rows))]
}

// =============================================================================
// DASHBOARD
// =============================================================================

// DashboardSource adds the low stock query to Source.
type DashboardSource interface {
	Source
	LowStock(ctx context.Context) (iter.Seq[inventory.Product], error)
	Threshold() int64
}

type Dashboard struct {
	ProductCount  int                 `json:"productCount"`
	InboundCount  int                 `json:"inboundCount"`
	OutboundCount int                 `json:"outboundCount"`
	Threshold     int64               `json:"threshold"`
	LowStock      []inventory.Product `json:"lowStock"`
}

// Summarize counts every product and ledger entry and lists low stock.
func Summarize(ctx context.Context, src DashboardSource) (Dashboard, error) {
	var d Dashboard
	products, err := src.ListProducts(ctx)
	if err != nil {
		return d, err
	}
	inbound, err := src.ListInbound(ctx, inventory.EntryFilter{})
	if err != nil {
		return d, err
	}
	outbound, err := src.ListOutbound(ctx, inventory.EntryFilter{})
	if err != nil {
		return d, err
	}
	low, err := src.LowStock(ctx)
	if err != nil {
		return d, err
	}

	d.ProductCount = len(products)
	d.InboundCount = len(inbound)
	d.OutboundCount = len(outbound)
	d.Threshold = src.Threshold()
	d.LowStock = []inventory.Product{}
	for p := range low {
		d.LowStock = append(d.LowStock, p)
	}
	return d, nil
}
