package stock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLedger(rdb), mr
}

func TestResourceKeys(t *testing.T) {
	assert.Equal(t, "stock:event:e1", EventResource("e1").Key())
	assert.Equal(t, "stock:slot:s1", SlotResource("s1").Key())
	assert.Equal(t, "stock:slot:s1", For("e1", "s1").Key())
	assert.Equal(t, "stock:event:e1", For("e1", "").Key())
}

func TestLedger_DecrementUntilSoldOut(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLedger(t)
	res := EventResource("e1")

	require.NoError(t, l.Initialize(ctx, res, 2))

	remaining, err := l.Decrement(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	remaining, err = l.Decrement(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	_, err = l.Decrement(ctx, res)
	assert.ErrorIs(t, err, ErrSoldOut)

	val, err := mr.Get(res.Key())
	require.NoError(t, err)
	assert.Equal(t, "0", val, "counter must be compensated back to zero")
}

func TestLedger_MissingCounterIsSoldOut(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLedger(t)

	_, err := l.Decrement(ctx, SlotResource("never-initialized"))
	assert.ErrorIs(t, err, ErrSoldOut)

	val, _ := mr.Get("stock:slot:never-initialized")
	assert.Equal(t, "0", val)

	n, err := l.Peek(ctx, EventResource("absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_IncrementRestoresUnit(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	res := SlotResource("s1")

	require.NoError(t, l.Initialize(ctx, res, 1))
	_, err := l.Decrement(ctx, res)
	require.NoError(t, err)

	n, err := l.Increment(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.Peek(ctx, res)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLedger_InitializeRejectsNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	assert.Error(t, l.Initialize(context.Background(), EventResource("e1"), -1))
}

func TestLedger_ConcurrentDecrementNeverOversells(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	res := EventResource("hot")

	const capacity = 10
	const buyers = 60
	require.NoError(t, l.Initialize(ctx, res, capacity))

	var wg sync.WaitGroup
	var sold, soldOut atomic.Int64
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Decrement(ctx, res)
			switch {
			case err == nil:
				sold.Add(1)
			case assert.ErrorIs(t, err, ErrSoldOut):
				soldOut.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(capacity), sold.Load())
	assert.Equal(t, int64(buyers-capacity), soldOut.Load())

	n, err := l.Peek(ctx, res)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_Delete(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLedger(t)

	require.NoError(t, l.Initialize(ctx, EventResource("e1"), 5))
	require.NoError(t, l.Initialize(ctx, SlotResource("s1"), 5))
	require.NoError(t, l.Delete(ctx, EventResource("e1"), SlotResource("s1")))

	assert.False(t, mr.Exists("stock:event:e1"))
	assert.False(t, mr.Exists("stock:slot:s1"))
}
