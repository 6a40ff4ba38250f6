package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dapurkue/stockledger/inventory"
)

// LedgerMetrics records reconciler activity. A nil *LedgerMetrics, or one
// built without a registerer, records nothing.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	units      *prometheus.CounterVec
	lowStock   prometheus.Gauge
}

// NewLedgerMetrics registers the ledger metrics on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_operations_total",
		Help: "Stock operations by name and outcome.",
	}, []string{"op", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stock_operation_duration_seconds",
		Help:    "Duration of stock operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_units_moved_total",
		Help: "Units added to or removed from quantity on hand.",
	}, []string{"direction"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stock_low_products",
		Help: "Products at or below the low stock threshold at the last check.",
	})
	reg.MustRegister(operations, duration, units, lowStock)
	return &LedgerMetrics{
		operations: operations,
		duration:   duration,
		units:      units,
		lowStock:   lowStock,
	}
}

// ObserveOperation implements inventory.OperationRecorder.
func (m *LedgerMetrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	op = normalizeLabel(op)
	m.operations.WithLabelValues(op, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Publish implements inventory.EventPublisher by counting moved units.
func (m *LedgerMetrics) Publish(_ context.Context, ev inventory.StockEvent) error {
	if m == nil || m.units == nil {
		return nil
	}
	switch {
	case ev.Delta > 0:
		m.units.WithLabelValues("in").Add(float64(ev.Delta))
	case ev.Delta < 0:
		m.units.WithLabelValues("out").Add(float64(-ev.Delta))
	}
	return nil
}

// SetLowStock records how many products the monitor found below threshold.
func (m *LedgerMetrics) SetLowStock(n int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
