package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ViolationLog counts throttling incidents per subject in a sliding window
// backed by Redis sorted sets.
type ViolationLog struct {
	Client *redis.Client
	Prefix string
	Window time.Duration
	Now    func() time.Time
}

// Record registers one incident for key and returns how many fall inside the window.
func (v ViolationLog) Record(ctx context.Context, key string) (int, error) {
	if v.Client == nil {
		return 0, fmt.Errorf("violation log: redis client not configured")
	}
	window := v.Window
	if window <= 0 {
		window = time.Hour
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	redisKey := v.Prefix + key
	cutoff := fmt.Sprintf("%d", now.Add(-window).UnixNano())

	pipe := v.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record violation: %w", err)
	}
	return int(count.Val()), nil
}

// Reset forgets the incidents recorded for key.
func (v ViolationLog) Reset(ctx context.Context, key string) error {
	if v.Client == nil {
		return nil
	}
	return v.Client.Del(ctx, v.Prefix+key).Err()
}
