package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache. Each event's latest
// snapshot is a JSON string at "snapshot:{eventID}".
type SnapshotCache struct {
	c *Client
}

// NewSnapshotCache creates a SnapshotCache backed by c.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{c: c}
}

// Put implements domain.SnapshotCache.
func (sc *SnapshotCache) Put(ctx context.Context, snap domain.GameSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.EventID, err)
	}
	if err := sc.c.rdb.Set(ctx, sc.c.key("snapshot:", snap.EventID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put snapshot %s: %w", snap.EventID, err)
	}
	return nil
}

// Latest implements domain.SnapshotCache.
func (sc *SnapshotCache) Latest(ctx context.Context, eventID string) (domain.GameSnapshot, error) {
	data, err := sc.c.rdb.Get(ctx, sc.c.key("snapshot:", eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameSnapshot{}, fmt.Errorf("redis: snapshot %s: %w", eventID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.GameSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", eventID, err)
	}
	var snap domain.GameSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.GameSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", eventID, err)
	}
	return snap, nil
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
