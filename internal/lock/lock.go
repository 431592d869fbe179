package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queuegate/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("could not acquire lock within wait time")

const releaseTimeout = 2 * time.Second

// Compare-and-delete: only the holder of the token may release the lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises critical sections per key across processes.
type Locker interface {
	// WithLock runs fn while holding key. It waits at most wait for the lock;
	// the lease auto-expires after lease if the holder dies.
	WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error
	// WithUserReservationLock holds the per (event, user) reservation lock with
	// the configured wait and lease.
	WithUserReservationLock(ctx context.Context, eventID, userID string, fn func(ctx context.Context) error) error
}

func ReservationKey(eventID, userID string) string {
	return fmt.Sprintf("lock:reservation:%s:%s", eventID, userID)
}

type RedisLocker struct {
	rdb           redis.Cmdable
	log           *logger.Logger
	wait          time.Duration
	lease         time.Duration
	retryInterval time.Duration
}

type Option func(*RedisLocker)

func WithWaitTime(d time.Duration) Option {
	return func(l *RedisLocker) { l.wait = d }
}

func WithLeaseTime(d time.Duration) Option {
	return func(l *RedisLocker) { l.lease = d }
}

func WithRetryInterval(d time.Duration) Option {
	return func(l *RedisLocker) { l.retryInterval = d }
}

func NewRedisLocker(rdb redis.Cmdable, log *logger.Logger, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		rdb:           rdb,
		log:           log.WithComponent("lock"),
		wait:          5 * time.Second,
		lease:         10 * time.Second,
		retryInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) WithUserReservationLock(ctx context.Context, eventID, userID string, fn func(ctx context.Context) error) error {
	return l.WithLock(ctx, ReservationKey(eventID, userID), l.wait, l.lease, fn)
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, wait, lease time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token, wait, lease); err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string, wait, lease time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// release runs on every exit path of WithLock, including panics, with a
// context detached from the caller's cancellation.
func (l *RedisLocker) release(ctx context.Context, key, token string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	released, err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Int()
	if err != nil {
		l.log.Error("Failed to release lock", "key", key, "error", err)
		return
	}
	if released == 0 {
		l.log.Warn("Lock lease expired before release", "key", key)
	}
}
