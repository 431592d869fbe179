package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queuegate/pkg/model"

	"github.com/redis/go-redis/v9"
)

const readyMarker = "ready"

// Enter is idempotent: a ready user stays ready, a queued user keeps the
// original rank. New arrivals get score arrivalMillis*1000 + seq%1000, built
// as a string so the double stays exact.
var enterScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[3]) == 1 then
	return {"READY", 0}
end
local rank = redis.call("ZRANK", KEYS[1], ARGV[1])
if rank then
	return {"WAITING", rank + 1}
end
local seq = redis.call("INCR", KEYS[2])
local score = ARGV[2] .. string.format("%03d", seq % 1000)
redis.call("ZADD", KEYS[1], score, ARGV[1])
rank = redis.call("ZRANK", KEYS[1], ARGV[1])
return {"WAITING", rank + 1}
`)

// Promote pops up to n users and grants each a ready marker in one step, so a
// popped user is never left without a grant.
var promoteScript = redis.NewScript(`
local popped = redis.call("ZPOPMIN", KEYS[1], ARGV[1])
local users = {}
for i = 1, #popped, 2 do
	local user = popped[i]
	redis.call("SET", ARGV[3] .. user, "ready", "EX", ARGV[2])
	users[#users + 1] = user
end
return users
`)

type EnterResult struct {
	Status   model.QueueStatus
	Position int64
}

// AdmissionQueue is the per-event FIFO of waiting users plus the ready grants
// of users admitted to reserve.
type AdmissionQueue interface {
	Enter(ctx context.Context, eventID, userID string, arrival time.Time) (EnterResult, error)
	Leave(ctx context.Context, eventID, userID string) (bool, error)
	// Position is 1-indexed; ok is false when the user is not queued.
	Position(ctx context.Context, eventID, userID string) (pos int64, ok bool, err error)
	Size(ctx context.Context, eventID string) (int64, error)
	PopFront(ctx context.Context, eventID string, n int) ([]string, error)
	PeekFront(ctx context.Context, eventID string, n int) ([]string, error)
	Promote(ctx context.Context, eventID string, n int, ttl time.Duration) ([]string, error)
	IsQueued(ctx context.Context, eventID, userID string) (bool, error)
	IsReady(ctx context.Context, eventID, userID string) (bool, error)
	GrantReady(ctx context.Context, eventID, userID string, ttl time.Duration) error
	ConsumeReady(ctx context.Context, eventID, userID string) error
	Clear(ctx context.Context, eventID string) error
}

func queueKey(eventID string) string {
	return "queue:event:" + eventID
}

func seqKey(eventID string) string {
	return "queue:seq:" + eventID
}

func readyPrefix(eventID string) string {
	return "ready:event:" + eventID + ":"
}

func readyKey(eventID, userID string) string {
	return readyPrefix(eventID) + userID
}

type redisQueue struct {
	rdb redis.Cmdable
}

func NewRedisQueue(rdb redis.Cmdable) AdmissionQueue {
	return &redisQueue{rdb: rdb}
}

func (q *redisQueue) Enter(ctx context.Context, eventID, userID string, arrival time.Time) (EnterResult, error) {
	keys := []string{queueKey(eventID), seqKey(eventID), readyKey(eventID, userID)}
	raw, err := enterScript.Run(ctx, q.rdb, keys, userID, arrival.UnixMilli()).Slice()
	if err != nil {
		return EnterResult{}, fmt.Errorf("failed to enter queue of event %s: %w", eventID, err)
	}
	if len(raw) != 2 {
		return EnterResult{}, fmt.Errorf("unexpected enter reply %v", raw)
	}

	status, _ := raw[0].(string)
	pos, _ := raw[1].(int64)
	return EnterResult{Status: model.QueueStatus(status), Position: pos}, nil
}

func (q *redisQueue) Leave(ctx context.Context, eventID, userID string) (bool, error) {
	removed, err := q.rdb.ZRem(ctx, queueKey(eventID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to leave queue of event %s: %w", eventID, err)
	}
	return removed > 0, nil
}

func (q *redisQueue) Position(ctx context.Context, eventID, userID string) (int64, bool, error) {
	rank, err := q.rdb.ZRank(ctx, queueKey(eventID), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read queue position: %w", err)
	}
	return rank + 1, true, nil
}

func (q *redisQueue) Size(ctx context.Context, eventID string) (int64, error) {
	n, err := q.rdb.ZCard(ctx, queueKey(eventID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue size: %w", err)
	}
	return n, nil
}

func (q *redisQueue) PopFront(ctx context.Context, eventID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	popped, err := q.rdb.ZPopMin(ctx, queueKey(eventID), int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop queue of event %s: %w", eventID, err)
	}
	users := make([]string, 0, len(popped))
	for _, z := range popped {
		if user, ok := z.Member.(string); ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (q *redisQueue) PeekFront(ctx context.Context, eventID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	users, err := q.rdb.ZRange(ctx, queueKey(eventID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek queue of event %s: %w", eventID, err)
	}
	return users, nil
}

func (q *redisQueue) Promote(ctx context.Context, eventID string, n int, ttl time.Duration) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	ttlSeconds := max(int64(ttl/time.Second), 1)
	users, err := promoteScript.Run(ctx, q.rdb, []string{queueKey(eventID)},
		n, ttlSeconds, readyPrefix(eventID)).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to promote queue of event %s: %w", eventID, err)
	}
	return users, nil
}

func (q *redisQueue) IsQueued(ctx context.Context, eventID, userID string) (bool, error) {
	_, ok, err := q.Position(ctx, eventID, userID)
	return ok, err
}

func (q *redisQueue) IsReady(ctx context.Context, eventID, userID string) (bool, error) {
	n, err := q.rdb.Exists(ctx, readyKey(eventID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read ready grant: %w", err)
	}
	return n > 0, nil
}

func (q *redisQueue) GrantReady(ctx context.Context, eventID, userID string, ttl time.Duration) error {
	if err := q.rdb.Set(ctx, readyKey(eventID, userID), readyMarker, ttl).Err(); err != nil {
		return fmt.Errorf("failed to grant ready to %s: %w", userID, err)
	}
	return nil
}

func (q *redisQueue) ConsumeReady(ctx context.Context, eventID, userID string) error {
	if err := q.rdb.Del(ctx, readyKey(eventID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to consume ready grant of %s: %w", userID, err)
	}
	return nil
}

// Clear drops the queue and its arrival counter. Ready grants are left to
// expire.
func (q *redisQueue) Clear(ctx context.Context, eventID string) error {
	if err := q.rdb.Del(ctx, queueKey(eventID), seqKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to clear queue of event %s: %w", eventID, err)
	}
	return nil
}
