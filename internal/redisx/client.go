package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Ping(ctx context.Context, rdb redis.Cmdable) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// StatusView is the cached read model behind GET /orders/{id}/status.
type StatusView struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status"`
	Progress  int           `json:"progress"`
	PickerID  string        `json:"picker_id,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func ViewOf(o orders.Order) StatusView {
	v := StatusView{OrderID: o.ID, Status: o.Status, Progress: o.Progress, UpdatedAt: o.UpdatedAt}
	if o.PickerID != nil {
		v.PickerID = *o.PickerID
	}
	return v
}

// setViewScript writes a view only if the stored one is not newer. The view
// lives in a hash next to its UpdatedAt in unix microseconds, so the compare
// and the write happen in one server-side step.
var setViewScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'at')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'view', ARGV[1], 'at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache}
}

// Get reports false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (*StatusView, bool, error) {
	b, err := c.rdb.HGet(ctx, orderStatusKey(orderID), "view").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v StatusView
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false, fmt.Errorf("redis: decode status view %s: %w", orderID, err)
	}
	return &v, true, nil
}

// Set stores v unless the cached view is newer. Events can arrive out of
// order across consumer restarts, and the API and the worker write the same
// key; UpdatedAt decides.
func (c *StatusCache) Set(ctx context.Context, v StatusView) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = setViewScript.Run(ctx, c.rdb, []string{orderStatusKey(v.OrderID)},
		b, strconv.FormatInt(v.UpdatedAt.UnixMicro(), 10), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set status view %s: %w", v.OrderID, err)
	}
	return nil
}

func (c *StatusCache) Invalidate(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, orderStatusKey(orderID)).Err()
}

// Deduper remembers processed event ids for one consuming service.
type Deduper struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDeduper(rdb redis.Cmdable, service string) *Deduper {
	return &Deduper{rdb: rdb, service: service, ttl: TTLDedup}
}

// Claim marks id as seen and reports whether this call was the first.
func (d *Deduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, dedupKey(d.service, id), "1", d.ttl).Result()
}

// Forget undoes Claim so a failed event can be processed again.
func (d *Deduper) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, dedupKey(d.service, id)).Err()
}

// Idempotency maps external order ids to the order they created.
type Idempotency struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: TTLIdempotency}
}

func (i *Idempotency) Lookup(ctx context.Context, externalID string) (string, bool, error) {
	id, err := i.rdb.Get(ctx, orderCreateKey(externalID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (i *Idempotency) Remember(ctx context.Context, externalID, orderID string) error {
	return i.rdb.Set(ctx, orderCreateKey(externalID), orderID, i.ttl).Err()
}
