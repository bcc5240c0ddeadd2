package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// activityKey holds the rolling feed of recent pass events mirrored by the
// worker for cheap dashboard reads.
const activityKey = "hallpass:activity"

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// PushActivity prepends an event to the rolling activity feed, trimming it
// to max entries.
func (r *Redis) PushActivity(ctx context.Context, payload string, max int64) error {
	if err := r.Client.LPush(ctx, activityKey, payload).Err(); err != nil {
		return err
	}
	return r.Client.LTrim(ctx, activityKey, 0, max-1).Err()
}

// RecentActivity returns up to limit entries from the activity feed,
// newest first.
func (r *Redis) RecentActivity(ctx context.Context, limit int64) ([]string, error) {
	return r.Client.LRange(ctx, activityKey, 0, limit-1).Result()
}
