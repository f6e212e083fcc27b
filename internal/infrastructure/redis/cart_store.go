package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	domain "github.com/Zhima-Mochi/minishop-storefront/internal/domain/cart"
	goredis "github.com/redis/go-redis/v9"
)

// Each customer owns two hashes keyed by cart entry key: quantities and entry
// metadata. The {cid} hash tag pins both to one cluster slot so the scripts
// below can touch them together.
func qtyKey(customerID string) string  { return "cart:{" + customerID + "}:qty" }
func metaKey(customerID string) string { return "cart:{" + customerID + "}:meta" }

// KEYS[1]=qty KEYS[2]=meta ARGV[1]=entry key ARGV[2]=delta ARGV[3]=meta json
var incrementScript = goredis.NewScript(`
redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[3])
return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

// KEYS[1]=qty KEYS[2]=meta ARGV[1]=entry key ARGV[2]=delta
var decrementScript = goredis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if not current then
  return 0
end
local left = tonumber(current) - tonumber(ARGV[2])
if left <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], left)
return left
`)

// KEYS[1]=qty KEYS[2]=meta ARGV=entry key, quantity pairs
var deductScript = goredis.NewScript(`
for i = 1, #ARGV, 2 do
  local current = redis.call('HGET', KEYS[1], ARGV[i])
  if current then
    local left = tonumber(current) - tonumber(ARGV[i + 1])
    if left <= 0 then
      redis.call('HDEL', KEYS[1], ARGV[i])
      redis.call('HDEL', KEYS[2], ARGV[i])
    else
      redis.call('HSET', KEYS[1], ARGV[i], left)
    end
  end
end
return 0
`)

type entryMeta struct {
	ProductID string   `json:"product_id"`
	Options   []string `json:"options"`
}

// CartStore keeps carts in Redis. Increment, Decrement and Deduct run as Lua scripts,
// so concurrent updates to one entry never lose a write.
type CartStore struct {
	rdb goredis.UniversalClient
}

func NewCartStore(rdb goredis.UniversalClient) *CartStore {
	return &CartStore{rdb: rdb}
}

func (s *CartStore) Increment(ctx context.Context, customerID string, entry domain.Entry, delta int) (domain.Entry, error) {
	meta, err := json.Marshal(entryMeta{ProductID: entry.ProductID, Options: entry.Options})
	if err != nil {
		return domain.Entry{}, fmt.Errorf("redis cart: encode entry: %w", err)
	}
	qty, err := incrementScript.Run(ctx, s.rdb,
		[]string{qtyKey(customerID), metaKey(customerID)},
		string(entry.Key), delta, string(meta),
	).Int64()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("redis cart: increment: %w", err)
	}
	entry.Options = append([]string(nil), entry.Options...)
	entry.Quantity = int(qty)
	return entry, nil
}

func (s *CartStore) Decrement(ctx context.Context, customerID string, key domain.Key, delta int) (int, error) {
	left, err := decrementScript.Run(ctx, s.rdb,
		[]string{qtyKey(customerID), metaKey(customerID)},
		string(key), delta,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis cart: decrement: %w", err)
	}
	return int(left), nil
}

func (s *CartStore) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	var qtyCmd, metaCmd *goredis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		qtyCmd = p.HGetAll(ctx, qtyKey(customerID))
		metaCmd = p.HGetAll(ctx, metaKey(customerID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis cart: get: %w", err)
	}

	metas := metaCmd.Val()
	c := domain.New(customerID)
	for k, raw := range qtyCmd.Val() {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("redis cart: quantity for %q: %w", k, err)
		}
		e := domain.Entry{Key: domain.Key(k), Quantity: qty}
		if m, ok := metas[k]; ok {
			var meta entryMeta
			if err := json.Unmarshal([]byte(m), &meta); err != nil {
				return nil, fmt.Errorf("redis cart: entry meta for %q: %w", k, err)
			}
			e.ProductID = meta.ProductID
			e.Options = meta.Options
		}
		c.Entries[e.Key] = e
	}
	return c, nil
}

func (s *CartStore) Deduct(ctx context.Context, customerID string, lines map[domain.Key]int) error {
	args := make([]any, 0, 2*len(lines))
	for k, qty := range lines {
		if qty < 1 {
			continue
		}
		args = append(args, string(k), qty)
	}
	if len(args) == 0 {
		return nil
	}
	err := deductScript.Run(ctx, s.rdb, []string{qtyKey(customerID), metaKey(customerID)}, args...).Err()
	if err != nil {
		return fmt.Errorf("redis cart: deduct: %w", err)
	}
	return nil
}

func (s *CartStore) Clear(ctx context.Context, customerID string) error {
	if err := s.rdb.Del(ctx, qtyKey(customerID), metaKey(customerID)).Err(); err != nil {
		return fmt.Errorf("redis cart: clear: %w", err)
	}
	return nil
}
