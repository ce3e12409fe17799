package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed lua/slide_window.lua
var slideWindowScript string

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiter keeps window counters in a Redis sorted set so every process
// in a deployment draws from the same quota. The check-and-record pair runs
// as one Lua script, keeping it atomic across processes.
type RedisLimiter struct {
	cmd       redis.Cmdable
	classes   map[string]Class
	keyPrefix string
	now       func() time.Time
}

func NewRedisLimiter(cmd redis.Cmdable, classes map[string]Class) *RedisLimiter {
	return &RedisLimiter{
		cmd:       cmd,
		classes:   classes,
		keyPrefix: "ratelimit:",
		now:       time.Now,
	}
}

func (r *RedisLimiter) Limited(ctx context.Context, key, class string) (bool, error) {
	c, ok := r.classes[class]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	limited, err := r.cmd.Eval(ctx, slideWindowScript,
		[]string{r.windowKey(key, class)},
		c.Window.Milliseconds(),
		c.Max,
		r.now().UnixMilli(),
		uuid.NewString(),
	).Bool()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis eval: %w", err)
	}
	return limited, nil
}

func (r *RedisLimiter) Remaining(ctx context.Context, key, class string) (Remaining, error) {
	c, ok := r.classes[class]
	if !ok {
		return Remaining{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}

	now := r.now()
	k := r.windowKey(key, class)
	windowStart := now.Add(-c.Window).UnixMilli()

	if err := r.cmd.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(windowStart, 10)).Err(); err != nil {
		return Remaining{}, fmt.Errorf("ratelimit: prune window: %w", err)
	}

	count, err := r.cmd.ZCard(ctx, k).Result()
	if err != nil {
		return Remaining{}, fmt.Errorf("ratelimit: count window: %w", err)
	}

	rem := c.Max - int(count)
	if rem < 0 {
		rem = 0
	}

	resetAt := now
	if count > 0 {
		oldest, err := r.cmd.ZRangeWithScores(ctx, k, 0, 0).Result()
		if err != nil {
			return Remaining{}, fmt.Errorf("ratelimit: oldest entry: %w", err)
		}
		if len(oldest) > 0 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(c.Window)
		}
	}

	return Remaining{Count: rem, ResetAt: resetAt}, nil
}

func (r *RedisLimiter) windowKey(key, class string) string {
	return r.keyPrefix + class + ":" + key
}
