package inventory

import (
	"context"
	"iter"
)

// DefaultLowStockThreshold is the quantity at or below which a product is
// reported as running low.
const DefaultLowStockThreshold int64 = 10

// ListBelowThreshold yields products whose quantity on hand is at or below
// threshold, ordered by code. The threshold is inclusive.
func (r *Reconciler) ListBelowThreshold(ctx context.Context, threshold int64) (iter.Seq[Product], error) {
	if threshold < 0 {
		return nil, &ValidationError{Field: "threshold", Reason: "must be at least 0"}
	}
	products, err := r.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return func(yield func(Product) bool) {
		for _, p := range products {
			if p.QuantityOnHand > threshold {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// LowStock uses the threshold configured on the Reconciler.
func (r *Reconciler) LowStock(ctx context.Context) (iter.Seq[Product], error) {
	return r.ListBelowThreshold(ctx, r.threshold)
}

func (r *Reconciler) Threshold() int64 {
	return r.threshold
}
