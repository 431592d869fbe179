package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"queuegate/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var arrival = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T) (AdmissionQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb), mr
}

func enterAll(t *testing.T, q AdmissionQueue, eventID string, users ...string) {
	t.Helper()
	for i, u := range users {
		_, err := q.Enter(context.Background(), eventID, u, arrival.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, err)
	}
}

func TestEnter_AssignsFIFOPositions(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for i, u := range []string{"a", "b", "c"} {
		res, err := q.Enter(ctx, "e1", u, arrival.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusWaiting, res.Status)
		assert.Equal(t, int64(i+1), res.Position)
	}

	size, err := q.Size(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestEnter_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	enterAll(t, q, "e1", "a", "b")

	res, err := q.Enter(ctx, "e1", "a", arrival.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Position, "re-entering must not move the user to the back")

	size, err := q.Size(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
}

func TestEnter_SameMillisecondKeepsArrivalOrder(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, u := range users {
		_, err := q.Enter(ctx, "e1", u, arrival)
		require.NoError(t, err)
	}

	front, err := q.PeekFront(ctx, "e1", len(users))
	require.NoError(t, err)
	assert.Equal(t, users, front)
}

func TestEnter_ReadyUserStaysReady(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	require.NoError(t, q.GrantReady(ctx, "e1", "a", time.Minute))

	res, err := q.Enter(ctx, "e1", "a", arrival)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusReady, res.Status)
	assert.Zero(t, res.Position)

	queued, err := q.IsQueued(ctx, "e1", "a")
	require.NoError(t, err)
	assert.False(t, queued)
}

func TestPosition(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	enterAll(t, q, "e1", "a", "b", "c")

	pos, ok, err := q.Position(ctx, "e1", "c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), pos)

	_, ok, err = q.Position(ctx, "e1", "zzz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)
	enterAll(t, q, "e1", "a", "b")

	removed, err := q.Leave(ctx, "e1", "a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{queueKey("e1"), seqKey("e1")}, mr.Keys(), "leaving writes no per-user keys")

	pos, _, err := q.Position(ctx, "e1", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)

	removed, err = q.Leave(ctx, "e1", "a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPopFront(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	enterAll(t, q, "e1", "a", "b", "c")

	popped, err := q.PopFront(ctx, "e1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, popped)

	popped, err = q.PopFront(ctx, "e1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, popped)

	popped, err = q.PopFront(ctx, "e1", 10)
	require.NoError(t, err)
	assert.Empty(t, popped)
}

func TestPopFront_ConcurrentPopsNeverOverlap(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	const total = 200
	users := make([]string, total)
	for i := range users {
		users[i] = fmt.Sprintf("u%03d", i)
	}
	enterAll(t, q, "e1", users...)

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				popped, err := q.PopFront(ctx, "e1", 7)
				if !assert.NoError(t, err) || len(popped) == 0 {
					return
				}
				mu.Lock()
				for _, u := range popped {
					seen[u]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for u, n := range seen {
		assert.Equal(t, 1, n, "user %s popped more than once", u)
	}
}

func TestPromote_BatchOfTwoFromFive(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)
	enterAll(t, q, "e1", "u1", "u2", "u3", "u4", "u5")

	promoted, err := q.Promote(ctx, "e1", 2, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, promoted)

	for _, u := range []string{"u1", "u2"} {
		ready, err := q.IsReady(ctx, "e1", u)
		require.NoError(t, err)
		assert.True(t, ready)
		assert.Equal(t, 10*time.Minute, mr.TTL(readyKey("e1", u)))
	}

	for i, u := range []string{"u3", "u4", "u5"} {
		pos, ok, err := q.Position(ctx, "e1", u)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(i+1), pos)
	}
}

func TestPromote_EmptyQueue(t *testing.T) {
	q, _ := newTestQueue(t)

	promoted, err := q.Promote(context.Background(), "e1", 100, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, promoted)
}

func TestReadyGrant_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)

	require.NoError(t, q.GrantReady(ctx, "e1", "a", 600*time.Second))

	mr.FastForward(599 * time.Second)
	ready, err := q.IsReady(ctx, "e1", "a")
	require.NoError(t, err)
	assert.True(t, ready)

	mr.FastForward(2 * time.Second)
	ready, err = q.IsReady(ctx, "e1", "a")
	require.NoError(t, err)
	assert.False(t, ready)

	res, err := q.Enter(ctx, "e1", "a", arrival)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, res.Status, "an expired grant sends the user back to the queue")
}

func TestConsumeReady(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)

	require.NoError(t, q.GrantReady(ctx, "e1", "a", time.Minute))
	require.NoError(t, q.ConsumeReady(ctx, "e1", "a"))

	ready, err := q.IsReady(ctx, "e1", "a")
	require.NoError(t, err)
	assert.False(t, ready)
	assert.False(t, mr.Exists(readyKey("e1", "a")))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)
	enterAll(t, q, "e1", "a", "b")
	enterAll(t, q, "e2", "x")

	require.NoError(t, q.Clear(ctx, "e1"))

	assert.False(t, mr.Exists(queueKey("e1")))
	assert.False(t, mr.Exists(seqKey("e1")))
	assert.Equal(t, []string{queueKey("e2"), seqKey("e2")}, mr.Keys(), "no per-user keys outlive the queue")

	size, err := q.Size(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), size, "other events are untouched")
}
