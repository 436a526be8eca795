package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/social-platform-login/internal/core/port"
)

var errNonPositiveWindow = errors.New("rate limit: window must be positive")

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository keeps one sorted set of attempt timestamps per throttle key.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// Window trims expired attempts and reads the count and oldest survivor in one MULTI/EXEC.
func (r *RateLimitRepository) Window(ctx context.Context, identifier string, window time.Duration, reference time.Time) (port.AttemptWindow, error) {
	if window <= 0 {
		return port.AttemptWindow{}, errNonPositiveWindow
	}

	key := r.key(identifier)
	cutoff := score(reference.Add(-window))

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
		count = pipe.ZCount(ctx, key, cutoff, score(reference))
		oldest = pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
			Min:   cutoff,
			Max:   score(reference),
			Count: 1,
		})
		return nil
	})
	if err != nil {
		return port.AttemptWindow{}, fmt.Errorf("redis rate limit window: %w", err)
	}

	result := port.AttemptWindow{Count: int(count.Val())}
	if entries := oldest.Val(); len(entries) > 0 {
		result.Oldest = time.Unix(0, int64(entries[0].Score))
	}
	return result, nil
}

// RecordAttempt adds a timestamp to the key and refreshes its TTL.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()})
		if r.cfg.TTL > 0 {
			pipe.Expire(ctx, key, r.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record attempt: %w", err)
	}
	return nil
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
