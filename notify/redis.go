/*
Package notify feeds the live dashboard from Redis.

PURPOSE:
  Stock events are published on a pub/sub channel and folded into counters
  so a dashboard can show activity without scanning the ledgers. The low
  stock monitor stores its latest snapshot here too.

KEYS:
  <prefix>:counters   hash, event kind -> count
  <prefix>:low_stock  JSON array of products at or below the threshold
  <prefix>:events     pub/sub channel carrying inventory.StockEvent JSON

SEE ALSO:
  - inventory/events.go: EventPublisher interface
  - api/scheduler.go: low stock monitor
*/
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dapurkue/stockledger/inventory"
)

const DefaultPrefix = "stock"

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("notify: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("notify: ping: %w", err)
	}
	return client, nil
}

// RedisPublisher implements inventory.EventPublisher. The caller owns the
// client.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Channel() string     { return p.prefix + ":events" }
func (p *RedisPublisher) countersKey() string { return p.prefix + ":counters" }
func (p *RedisPublisher) lowStockKey() string { return p.prefix + ":low_stock" }

// Publish bumps the counter for ev.Kind and broadcasts ev.
func (p *RedisPublisher) Publish(ctx context.Context, ev inventory.StockEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.HIncrBy(ctx, p.countersKey(), string(ev.Kind), 1)
	pipe.Publish(ctx, p.Channel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Counters returns event counts by kind. Kinds never seen are absent.
func (p *RedisPublisher) Counters(ctx context.Context) (map[inventory.EventKind]int64, error) {
	raw, err := p.client.HGetAll(ctx, p.countersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("notify: read counters: %w", err)
	}
	counters := make(map[inventory.EventKind]int64, len(raw))
	for kind, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("notify: counter %s: %w", kind, err)
		}
		counters[inventory.EventKind(kind)] = n
	}
	return counters, nil
}

// LowStockSnapshot is what the monitor stores on every tick.
type LowStockSnapshot struct {
	Threshold int64               `json:"threshold"`
	Products  []inventory.Product `json:"products"`
	TakenAt   time.Time           `json:"takenAt"`
}

// PutLowStock replaces the stored snapshot.
func (p *RedisPublisher) PutLowStock(ctx context.Context, snap LowStockSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("notify: marshal low stock: %w", err)
	}
	if err := p.client.Set(ctx, p.lowStockKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("notify: store low stock: %w", err)
	}
	return nil
}

// LowStock returns the last snapshot. ok is false when none was stored.
func (p *RedisPublisher) LowStock(ctx context.Context) (snap LowStockSnapshot, ok bool, err error) {
	data, err := p.client.Get(ctx, p.lowStockKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("notify: read low stock: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, false, fmt.Errorf("notify: decode low stock: %w", err)
	}
	return snap, true, nil
}

// Subscribe streams events until ctx is done. The returned channel is
// closed when the subscription ends.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan inventory.StockEvent, error) {
	sub := p.client.Subscribe(ctx, p.Channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("notify: subscribe: %w", err)
	}

	out := make(chan inventory.StockEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, open := <-msgs:
				if !open {
					return
				}
				var ev inventory.StockEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
