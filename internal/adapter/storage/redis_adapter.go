package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/port"
)

const (
	stockGateKeyPrefix = "stock:"
	idempotencyKeyTTL  = 24 * time.Hour

	orderEventChannel = "events:orders"
	stockEventChannel = "events:stock"
)

// reserveStockScript decrements the mirror only when it tracks the product
// and has enough. An untracked key passes through (-1) so the authoritative
// store still decides; 0 is a definite rejection.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// releaseStockScript credits the mirror back only if the key still exists,
// so a release never resurrects an expired or unseeded mirror entry.
var releaseStockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 1 then
	redis.call('INCRBY', key, tonumber(ARGV[1]))
end
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockGateKey(storeID, productID string) string {
	return stockGateKeyPrefix + storeID + ":" + productID
}

func (r *RedisAdapter) ReserveStock(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	result, err := reserveStockScript.Run(ctx, r.client, []string{stockGateKey(storeID, productID)}, quantity).Int()
	if err != nil {
		return false, err
	}
	return result != 0, nil
}

func (r *RedisAdapter) ReleaseStock(ctx context.Context, storeID, productID string, quantity int) error {
	return releaseStockScript.Run(ctx, r.client, []string{stockGateKey(storeID, productID)}, quantity).Err()
}

// SetStockMirror seeds or resets the gate value for a product; called when
// stock is restocked or the mirror is rebuilt from the database.
func (r *RedisAdapter) SetStockMirror(ctx context.Context, storeID, productID string, quantity int) error {
	return r.client.Set(ctx, stockGateKey(storeID, productID), quantity, 0).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func eventChannel(kind domain.EventKind) string {
	if kind == domain.EventKindStock {
		return stockEventChannel
	}
	return orderEventChannel
}

func (r *RedisAdapter) PublishOrderChange(ctx context.Context, ev domain.ChangeEvent) error {
	return r.publish(ctx, orderEventChannel, ev)
}

func (r *RedisAdapter) PublishStockChange(ctx context.Context, ev domain.ChangeEvent) error {
	return r.publish(ctx, stockEventChannel, ev)
}

func (r *RedisAdapter) publish(ctx context.Context, channel string, ev domain.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, payload).Err()
}

// redisSubscription is the explicit handle returned by Subscribe; closing it
// tears down the underlying pub/sub connection and closes Events.
type redisSubscription struct {
	ps     *redis.PubSub
	events chan domain.ChangeEvent
}

func (s *redisSubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}

func (r *RedisAdapter) Subscribe(ctx context.Context, kind domain.EventKind) (port.Subscription, error) {
	ps := r.client.Subscribe(ctx, eventChannel(kind))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &redisSubscription{
		ps:     ps,
		events: make(chan domain.ChangeEvent, 64),
	}
	go func() {
		defer close(sub.events)
		for msg := range ps.Channel() {
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			sub.events <- ev
		}
	}()
	return sub, nil
}
