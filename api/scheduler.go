/*
scheduler.go - Periodic low stock monitor

PURPOSE:
  Periodically lists products below the low stock threshold, stores the
  result where the dashboard reads it, updates the low stock gauge and
  publishes a low_stock event per product that newly fell below.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Checks once immediately on Start
  - Remembers which products were low on the previous check, so a product
    sitting below threshold is announced once, not on every tick

USAGE:
  monitor := NewLowStockMonitor(reconciler, MonitorOptions{Sink: publisher})
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - inventory/lowstock.go: ListBelowThreshold
  - notify/redis.go: Snapshot storage for the dashboard
*/
package api

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dapurkue/stockledger/inventory"
	"github.com/dapurkue/stockledger/logging"
	"github.com/dapurkue/stockledger/notify"
)

// SnapshotSink stores the latest low stock snapshot.
type SnapshotSink interface {
	PutLowStock(ctx context.Context, snap notify.LowStockSnapshot) error
}

// LowStockGauge receives the number of low stock products.
type LowStockGauge interface {
	SetLowStock(n int)
}

type MonitorOptions struct {
	Interval time.Duration // default 5m
	Sink     SnapshotSink
	Gauge    LowStockGauge
	Events   inventory.EventPublisher
	Logger   *logging.Logger
	Clock    func() time.Time
}

// LowStockMonitor checks stock levels on a ticker.
type LowStockMonitor struct {
	rec  *inventory.Reconciler
	opts MonitorOptions

	// low holds the products below threshold at the last check. checkMu
	// serializes checks.
	checkMu sync.Mutex
	low     map[inventory.ProductID]bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewLowStockMonitor(rec *inventory.Reconciler, opts MonitorOptions) *LowStockMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &LowStockMonitor{
		rec:  rec,
		opts: opts,
		low:  make(map[inventory.ProductID]bool),
	}
}

// Start begins the monitor. Calling it twice has no effect.
func (m *LowStockMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.opts.Interval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run()

	m.opts.Logger.Info(
		m.opts.Logger.WithField(context.Background(), "interval", m.opts.Interval.String()),
		"low stock monitor started",
	)
}

// Stop stops the monitor and waits for a running check to finish.
func (m *LowStockMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.wg.Wait()
	m.ticker = nil
	m.opts.Logger.Info(context.Background(), "low stock monitor stopped")
}

func (m *LowStockMonitor) run() {
	defer m.wg.Done()

	// Run immediately on start
	m.Check(context.Background())

	for {
		select {
		case <-m.ticker.C:
			m.Check(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Check runs one pass and returns the snapshot it took.
func (m *LowStockMonitor) Check(ctx context.Context) (notify.LowStockSnapshot, error) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	log := m.opts.Logger
	seq, err := m.rec.LowStock(ctx)
	if err != nil {
		log.Error(ctx, "low stock check failed", err)
		return notify.LowStockSnapshot{}, err
	}
	snap := notify.LowStockSnapshot{
		Threshold: m.rec.Threshold(),
		Products:  slices.Collect(seq),
		TakenAt:   m.opts.Clock().UTC(),
	}
	if snap.Products == nil {
		snap.Products = []inventory.Product{}
	}

	if m.opts.Gauge != nil {
		m.opts.Gauge.SetLowStock(len(snap.Products))
	}
	if m.opts.Sink != nil {
		if err := m.opts.Sink.PutLowStock(ctx, snap); err != nil {
			log.Warn(log.WithField(ctx, "error", err.Error()), "storing low stock snapshot failed")
		}
	}

	current := make(map[inventory.ProductID]bool, len(snap.Products))
	for _, p := range snap.Products {
		current[p.ID] = true
		if m.low[p.ID] || m.opts.Events == nil {
			continue
		}
		ev := inventory.StockEvent{
			Kind:           inventory.EventLowStock,
			ProductID:      p.ID,
			QuantityOnHand: p.QuantityOnHand,
			At:             snap.TakenAt,
		}
		if err := m.opts.Events.Publish(ctx, ev); err != nil {
			log.Warn(log.WithField(ctx, "product_id", string(p.ID)), "publishing low stock event failed")
		}
	}
	m.low = current

	log.Debug(log.WithField(ctx, "low_stock", len(snap.Products)), "low stock checked")
	return snap, nil
}
