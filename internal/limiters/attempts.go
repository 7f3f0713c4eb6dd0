package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAttemptsExceeded means a counter reached its cap inside the window.
var ErrAttemptsExceeded = errors.New("attempts exceeded")

// AttemptLimiter is a simple INCR+EXPIRE counter used to cap guessing
// against short codes (TOTP, backup codes) per account.
type AttemptLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	window      time.Duration
}

// NewAttemptLimiter returns a limiter namespaced by prefix.
func NewAttemptLimiter(client redis.UniversalClient, prefix string, maxAttempts int, window time.Duration) *AttemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &AttemptLimiter{redis: client, prefix: prefix, maxAttempts: maxAttempts, window: window}
}

func (l *AttemptLimiter) key(id string) string {
	return l.prefix + ":" + id
}

// Check returns ErrAttemptsExceeded when id is over its cap.
func (l *AttemptLimiter) Check(ctx context.Context, id string) error {
	count, err := l.redis.Get(ctx, l.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count >= int64(l.maxAttempts) {
		return ErrAttemptsExceeded
	}
	return nil
}

// RecordFailure bumps the counter. INCR and EXPIRE travel in one
// transaction so a crash between them cannot leave an immortal counter;
// NX makes the expiry stick only when the key has none yet.
func (l *AttemptLimiter) RecordFailure(ctx context.Context, id string) error {
	var count *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, l.key(id))
		pipe.ExpireNX(ctx, l.key(id), l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if count.Val() >= int64(l.maxAttempts) {
		return ErrAttemptsExceeded
	}
	return nil
}

// Reset deletes the counter.
func (l *AttemptLimiter) Reset(ctx context.Context, id string) error {
	if err := l.redis.Del(ctx, l.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
