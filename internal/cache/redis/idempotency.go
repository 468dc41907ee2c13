package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// restoreLua puts back the previous value only while the key still holds
// the value this process wrote. ARGV: current, prev, hadPrev, ttl ms.
const restoreLua = `
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
    return 0
end
if ARGV[3] == '1' then
    if tonumber(ARGV[4]) > 0 then
        redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[4])
    else
        redis.call('SET', KEYS[1], ARGV[2])
    end
else
    redis.call('DEL', KEYS[1])
end
return 1
`

// IdempotencyStore implements domain.IdempotencyStore with SET ... GET, so
// the swap is a single atomic command.
type IdempotencyStore struct {
	c         *Client
	restoreSc *redis.Script
}

// NewIdempotencyStore creates an IdempotencyStore backed by c.
func NewIdempotencyStore(c *Client) *IdempotencyStore {
	return &IdempotencyStore{c: c, restoreSc: redis.NewScript(restoreLua)}
}

// Swap implements domain.IdempotencyStore.
func (s *IdempotencyStore) Swap(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	prev, err := s.c.rdb.SetArgs(ctx, s.c.key(key), value, redis.SetArgs{Get: true, TTL: ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: swap %s: %w", key, err)
	}
	return prev, true, nil
}

// Restore implements domain.IdempotencyStore.
func (s *IdempotencyStore) Restore(ctx context.Context, key, current, prev string, hadPrev bool, ttl time.Duration) error {
	had := "0"
	if hadPrev {
		had = "1"
	}
	err := s.restoreSc.Run(ctx, s.c.rdb, []string{s.c.key(key)},
		current, prev, had, ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: restore %s: %w", key, err)
	}
	return nil
}

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)
