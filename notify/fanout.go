package notify

import (
	"context"
	"errors"

	"github.com/dapurkue/stockledger/inventory"
)

// Fanout delivers each event to every publisher and joins their errors.
type Fanout []inventory.EventPublisher

func (f Fanout) Publish(ctx context.Context, ev inventory.StockEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
