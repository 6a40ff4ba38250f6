package report

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const timestampLayout = "02/01/2006 15.04.05"

var rupiahPrinter = message.NewPrinter(language.Indonesian)

// Rupiah formats an amount the way the shop prints it: "Rp 5.000".
// Fractions are truncated.
func Rupiah(d decimal.Decimal) string {
	return rupiahPrinter.Sprintf("Rp %d", d.IntPart())
}

// FileName is the download name of the movement report PDF.
func FileName(now time.Time) string {
	return "Laporan-Barang-" + now.Format(time.DateOnly) + ".pdf"
}

// StockFileName is the download name of the stock report.
func StockFileName(now time.Time, ext string) string {
	return "Laporan_StokBarang_" + now.Format(time.DateOnly) + ext
}

// WriteCSV writes both movement tables, goods in first, separated by a
// blank record.
func WriteCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)

	records := [][]string{
		{"Barang Masuk"},
		{"No", "Nama Barang", "Jumlah", "Supplier", "Harga Total", "Tanggal"},
	}
	for _, r := range rep.Inbound {
		records = append(records, []string{
			strconv.Itoa(r.No),
			r.ProductName,
			strconv.FormatInt(r.Quantity, 10),
			r.SupplierName,
			r.TotalCost.StringFixed(2),
			r.Timestamp.Format(timestampLayout),
		})
	}
	records = append(records,
		[]string{},
		[]string{"Barang Keluar"},
		[]string{"No", "Nama Barang", "Jumlah", "Total", "Tanggal", "Penanggung Jawab"},
	)
	for _, r := range rep.Outbound {
		records = append(records, []string{
			strconv.Itoa(r.No),
			r.ProductName,
			strconv.FormatInt(r.Quantity, 10),
			r.TotalRevenue.StringFixed(2),
			r.Timestamp.Format(timestampLayout),
			r.ActorName,
		})
	}

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("report: write csv: %w", err)
	}
	return nil
}

// WriteStockCSV writes the numbered stock table.
func WriteStockCSV(w io.Writer, rows []StockRow) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"No", "Kode", "Nama", "Stok", "Harga Modal", "Harga Jual"}}
	for _, r := range rows {
		records = append(records, []string{
			strconv.Itoa(r.No),
			r.Code,
			r.Name,
			strconv.FormatInt(r.Stock, 10),
			r.UnitCost.StringFixed(2),
			r.UnitPrice.StringFixed(2),
		})
	}
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("report: write stock csv: %w", err)
	}
	return nil
}

var movementTemplate = template.Must(template.New("movement").Funcs(template.FuncMap{
	"rupiah": Rupiah,
	"stamp":  func(t time.Time) string { return t.Format(timestampLayout) },
	"day": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	},
}).Parse(`<!DOCTYPE html>
<html lang="id">
<head>
<meta charset="utf-8">
<title>Laporan Barang</title>
<style>
body { font-family: sans-serif; font-size: 11px; margin: 24px; }
h1 { font-size: 18px; }
h2 { font-size: 14px; margin-top: 24px; }
table { width: 100%; border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
th { background: #eee; }
td.empty { text-align: center; font-style: italic; }
</style>
</head>
<body>
<h1>Laporan Barang</h1>
{{- if or (day .From) (day .To)}}
<p>Periode: {{day .From}} s/d {{day .To}}</p>
{{- end}}

<h2>Barang Masuk</h2>
<table>
<thead><tr><th>No</th><th>Nama Barang</th><th>Jumlah</th><th>Supplier</th><th>Harga Total</th><th>Tanggal</th></tr></thead>
<tbody>
{{- range .Inbound}}
<tr><td>{{.No}}</td><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{.SupplierName}}</td><td>{{rupiah .TotalCost}}</td><td>{{stamp .Timestamp}}</td></tr>
{{- else}}
<tr><td colspan="6" class="empty">Tidak ada data barang masuk.</td></tr>
{{- end}}
</tbody>
</table>

<h2>Barang Keluar</h2>
<table>
<thead><tr><th>No</th><th>Nama Barang</th><th>Jumlah</th><th>Total</th><th>Tanggal</th><th>Penanggung Jawab</th></tr></thead>
<tbody>
{{- range .Outbound}}
<tr><td>{{.No}}</td><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{rupiah .TotalRevenue}}</td><td>{{stamp .Timestamp}}</td><td>{{.ActorName}}</td></tr>
{{- else}}
<tr><td colspan="6" class="empty">Tidak ada data barang keluar.</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// RenderHTML writes the movement report as a standalone HTML page.
func RenderHTML(w io.Writer, rep Report) error {
	if err := movementTemplate.Execute(w, rep); err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	return nil
}
