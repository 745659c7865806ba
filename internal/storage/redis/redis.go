// Package redis keeps short-lived state in Redis: the order lookup cache and
// the webhook delivery log.
package redis

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/matcha-bar/internal/codec"
	"github.com/xenking/matcha-bar/internal/domain/order"
)

// NewClient parses a redis:// URL or a bare host:port address.
func NewClient(addr string) (*redis.Client, error) {
	if opts, err := redis.ParseURL(addr); err == nil {
		return redis.NewClient(opts), nil
	}
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}

var _ order.Cache = (*OrderCache)(nil)

// OrderCache caches orders by code.
type OrderCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewOrderCache returns an OrderCache. Entries live for ttl plus up to a
// minute of jitter.
func NewOrderCache(client *redis.Client, ttl time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OrderCache{client: client, baseTTL: ttl}
}

// Get returns the cached order or order.ErrCacheMiss.
func (c *OrderCache) Get(ctx context.Context, code string) (*order.Order, error) {
	data, err := c.client.Get(ctx, orderKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, order.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	o, err := codec.UnmarshalOrder(data)
	if err != nil {
		// Drop entries written by an incompatible version.
		_ = c.client.Del(ctx, orderKey(code)).Err()
		return nil, order.ErrCacheMiss
	}
	return o, nil
}

// Set caches o.
func (c *OrderCache) Set(ctx context.Context, o *order.Order) error {
	jitter := time.Duration(rand.IntN(60)) * time.Second
	if err := c.client.Set(ctx, orderKey(o.Code), codec.MarshalOrder(o), c.baseTTL+jitter).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete evicts the order with code.
func (c *OrderCache) Delete(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, orderKey(code)).Err(); err != nil {
		return errors.Wrap(err, "redis delete")
	}
	return nil
}

func orderKey(code string) string {
	return "order:" + code
}

// DeliveryLog remembers processed webhook deliveries so retries from the
// provider are acknowledged without being applied twice.
type DeliveryLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeliveryLog returns a DeliveryLog keeping entries for ttl.
func NewDeliveryLog(client *redis.Client, ttl time.Duration) *DeliveryLog {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DeliveryLog{client: client, ttl: ttl}
}

// MarkFirst records id and reports whether this is its first delivery.
func (l *DeliveryLog) MarkFirst(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SetNX(ctx, "webhook:"+id, 1, l.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

// Forget removes id so a later delivery is processed again.
func (l *DeliveryLog) Forget(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, "webhook:"+id).Err(); err != nil {
		return errors.Wrap(err, "redis delete")
	}
	return nil
}
