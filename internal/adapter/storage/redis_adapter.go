package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const (
	cartKeyPrefix       = "cart:"
	stockLevelKeyPrefix = "stock_level:"
	cartTTL             = 7 * 24 * time.Hour
)

// transitionLevelScript stores the new level unless seq is older than the
// last recorded one, and returns 1 only for a NORMAL to LOW crossing.
var transitionLevelScript = redis.NewScript(`
local key = KEYS[1]
local level = ARGV[1]
local seq = tonumber(ARGV[2])

local last = tonumber(redis.call('HGET', key, 'seq') or '0')
if seq < last then
	return 0
end

local prev = redis.call('HGET', key, 'level') or 'NORMAL'
redis.call('HSET', key, 'level', level, 'seq', seq)

if prev ~= 'LOW' and level == 'LOW' then
	return 1
end

return 0
`)

// RedisCartStore keeps each cart as a hash of item ID to quantity.
type RedisCartStore struct {
	client redis.UniversalClient
}

func NewRedisCartStore(client redis.UniversalClient) *RedisCartStore {
	return &RedisCartStore{client: client}
}

func (r *RedisCartStore) GetCart(ctx context.Context, memberID string) (domain.Cart, error) {
	fields, err := r.client.HGetAll(ctx, cartKeyPrefix+memberID).Result()
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart %s: %w", memberID, err)
	}

	cart := domain.NewCart(memberID)
	for itemID, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("cart %s item %s: bad quantity %q", memberID, itemID, raw)
		}
		cart.Lines = append(cart.Lines, domain.CartLine{ItemID: itemID, Quantity: qty})
	}
	sort.Slice(cart.Lines, func(i, j int) bool { return cart.Lines[i].ItemID < cart.Lines[j].ItemID })

	return cart, nil
}

func (r *RedisCartStore) SaveCart(ctx context.Context, cart domain.Cart) error {
	key := cartKeyPrefix + cart.MemberID

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if cart.IsEmpty() {
			return nil
		}
		values := make([]any, 0, 2*len(cart.Lines))
		for _, l := range cart.Lines {
			values = append(values, l.ItemID, l.Quantity)
		}
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, cartTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cart %s: %w", cart.MemberID, err)
	}
	return nil
}

func (r *RedisCartStore) DeleteCart(ctx context.Context, memberID string) error {
	return r.client.Del(ctx, cartKeyPrefix+memberID).Err()
}

// RedisStockLevels shares the last known stock level of every item between
// processes, so a crossing alerts once per cluster.
type RedisStockLevels struct {
	client redis.UniversalClient
}

func NewRedisStockLevels(client redis.UniversalClient) *RedisStockLevels {
	return &RedisStockLevels{client: client}
}

func (r *RedisStockLevels) Transition(ctx context.Context, itemID string, level domain.StockLevel, seq int64) (bool, error) {
	key := stockLevelKeyPrefix + itemID

	result, err := transitionLevelScript.Run(ctx, r.client, []string{key}, string(level), seq).Int()
	if err != nil {
		return false, fmt.Errorf("transition stock level %s: %w", itemID, err)
	}

	return result == 1, nil
}

func (r *RedisStockLevels) Level(ctx context.Context, itemID string) (domain.StockLevel, error) {
	level, err := r.client.HGet(ctx, stockLevelKeyPrefix+itemID, "level").Result()
	if err == redis.Nil {
		return domain.StockLevelNormal, nil
	}
	if err != nil {
		return "", fmt.Errorf("load stock level %s: %w", itemID, err)
	}
	return domain.StockLevel(level), nil
}
