package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapurkue/stockledger/inventory"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPublisher(client, ""), mr
}

func TestPublish_CountsByKind(t *testing.T) {
	p, mr := newTestPublisher(t)
	ctx := context.Background()

	for _, kind := range []inventory.EventKind{
		inventory.EventInboundRecorded,
		inventory.EventOutboundRecorded,
		inventory.EventOutboundRecorded,
	} {
		require.NoError(t, p.Publish(ctx, inventory.StockEvent{Kind: kind, ProductID: "p-1"}))
	}

	counters, err := p.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[inventory.EventInboundRecorded])
	assert.Equal(t, int64(2), counters[inventory.EventOutboundRecorded])
	assert.Equal(t, "2", mr.HGet("stock:counters", "outbound_recorded"))
}

func TestSubscribe_ReceivesPublishedEvents(t *testing.T) {
	p, _ := newTestPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := p.Subscribe(ctx)
	require.NoError(t, err)

	want := inventory.StockEvent{Kind: inventory.EventLowStock, ProductID: "p-1", QuantityOnHand: 3}
	require.NoError(t, p.Publish(ctx, want))

	select {
	case got := <-events:
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.ProductID, got.ProductID)
		assert.Equal(t, int64(3), got.QuantityOnHand)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestLowStockSnapshot(t *testing.T) {
	p, _ := newTestPublisher(t)
	ctx := context.Background()

	_, ok, err := p.LowStock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	snap := LowStockSnapshot{
		Threshold: 10,
		Products:  []inventory.Product{{ID: "p-1", Code: "TPG-01", QuantityOnHand: 4}},
		TakenAt:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PutLowStock(ctx, snap))

	got, ok, err := p.LowStock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), got.Threshold)
	require.Len(t, got.Products, 1)
	assert.Equal(t, "TPG-01", got.Products[0].Code)
	assert.True(t, snap.TakenAt.Equal(got.TakenAt))
}

func TestPublish_ServerDown(t *testing.T) {
	p, mr := newTestPublisher(t)
	mr.Close()

	err := p.Publish(context.Background(), inventory.StockEvent{Kind: inventory.EventInboundRecorded})
	assert.Error(t, err)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, inventory.StockEvent) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	p, _ := newTestPublisher(t)
	boom := errors.New("boom")

	err := Fanout{failingPublisher{boom}, p}.Publish(context.Background(),
		inventory.StockEvent{Kind: inventory.EventCatalogAdjusted})
	assert.ErrorIs(t, err, boom)

	counters, err := p.Counters(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[inventory.EventCatalogAdjusted])
}
