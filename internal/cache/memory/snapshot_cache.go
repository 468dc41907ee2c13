package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

type cachedSnapshot struct {
	snap     domain.GameSnapshot
	expireAt time.Time
}

// SnapshotCache implements domain.SnapshotCache.
type SnapshotCache struct {
	mu    sync.RWMutex
	snaps map[string]cachedSnapshot
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)

// NewSnapshotCache creates an empty cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{snaps: make(map[string]cachedSnapshot)}
}

// Put stores snap as the latest for its event.
func (c *SnapshotCache) Put(_ context.Context, snap domain.GameSnapshot, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.snaps[snap.EventID] = cachedSnapshot{snap: snap, expireAt: exp}
	c.mu.Unlock()
	return nil
}

// Latest returns the newest snapshot for eventID or domain.ErrNotFound.
func (c *SnapshotCache) Latest(_ context.Context, eventID string) (domain.GameSnapshot, error) {
	c.mu.RLock()
	cs, ok := c.snaps[eventID]
	c.mu.RUnlock()
	if !ok || (!cs.expireAt.IsZero() && time.Now().After(cs.expireAt)) {
		return domain.GameSnapshot{}, fmt.Errorf("memory: snapshot %s: %w", eventID, domain.ErrNotFound)
	}
	return cs.snap, nil
}
