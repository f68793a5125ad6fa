package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// SnapshotCache stores rendered availability payloads so the public calendar
// endpoint does not recompute on every poll.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func availabilityKey(healthWorkerID int64) string {
	return fmt.Sprintf("availability:worker:%d", healthWorkerID)
}

func (c *SnapshotCache) GetAvailability(ctx context.Context, healthWorkerID int64) ([]byte, error) {
	data, err := c.client.Get(ctx, availabilityKey(healthWorkerID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get availability snapshot: %w", err)
	}
	return data, nil
}

func (c *SnapshotCache) SetAvailability(ctx context.Context, healthWorkerID int64, payload []byte) error {
	if err := c.client.Set(ctx, availabilityKey(healthWorkerID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set availability snapshot: %w", err)
	}
	return nil
}

func (c *SnapshotCache) InvalidateAvailability(ctx context.Context, healthWorkerID int64) error {
	if err := c.client.Del(ctx, availabilityKey(healthWorkerID)).Err(); err != nil {
		return fmt.Errorf("invalidate availability snapshot: %w", err)
	}
	return nil
}
