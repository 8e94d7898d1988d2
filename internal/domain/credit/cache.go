package credit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventsChannel carries the id of every account that received a new event.
const EventsChannel = "credit:events"

// BalanceCache caches computed balances. Entries are keyed by account
// version, so a new event makes older entries unreachable.
type BalanceCache interface {
	Get(ctx context.Context, accountID uuid.UUID, version, at int64) (int64, bool, error)
	Set(ctx context.Context, accountID uuid.UUID, version, at, balance int64) error
}

// Notifier announces that an account's event set changed.
type Notifier interface {
	Publish(ctx context.Context, accountID uuid.UUID) error
}

// RedisCache implements BalanceCache and Notifier on top of Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func balanceKey(accountID uuid.UUID, version, at int64) string {
	return fmt.Sprintf("credit:balance:%s:%d:%d", accountID, version, at)
}

func (c *RedisCache) Get(ctx context.Context, accountID uuid.UUID, version, at int64) (int64, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(accountID, version, at)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cached balance %q: %w", val, err)
	}
	return balance, true, nil
}

func (c *RedisCache) Set(ctx context.Context, accountID uuid.UUID, version, at, balance int64) error {
	return c.client.Set(ctx, balanceKey(accountID, version, at), balance, c.ttl).Err()
}

func (c *RedisCache) Publish(ctx context.Context, accountID uuid.UUID) error {
	return c.client.Publish(ctx, EventsChannel, accountID.String()).Err()
}
