package service

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"queuegate/internal/events/eventstest"
	"queuegate/internal/queue"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   QueueService
	store *eventstest.Store
	queue queue.AdmissionQueue
	mr    *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := eventstest.NewStore()
	q := queue.NewRedisQueue(rdb)
	cfg := config.Default(logger.Discard())

	return &fixture{
		svc:   NewQueueService(store, q, clock.NewFixed(now), cfg),
		store: store,
		queue: q,
		mr:    mr,
	}
}

func (f *fixture) openEvent(settings model.EventSettings) *model.Event {
	return f.store.Put(&model.Event{
		Status:   model.EventStatusOpen,
		OpenAt:   now.Add(-time.Hour),
		CloseAt:  now.Add(time.Hour),
		Settings: settings,
	})
}

func queued() model.EventSettings {
	return model.EventSettings{UseQueue: true, QueueBatchSize: 2}
}

func TestEnterQueue_FIFOWithEstimates(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(queued())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		pos, err := f.svc.EnterQueue(ctx, event.ID, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusWaiting, pos.Status)
		assert.EqualValues(t, i, pos.Position)
		assert.EqualValues(t, i, pos.TotalInQueue)
		// batch 2, interval 5s: floor(i/2)*5
		assert.EqualValues(t, int64(i/2)*5, pos.EstimatedWaitSeconds)
	}
}

func TestEnterQueue_Idempotent(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(queued())
	ctx := context.Background()

	first, err := f.svc.EnterQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	_, err = f.svc.EnterQueue(ctx, event.ID, "user-2")
	require.NoError(t, err)

	again, err := f.svc.EnterQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.Position, again.Position)
	assert.Equal(t, first.Status, again.Status)
	assert.EqualValues(t, 2, again.TotalInQueue)
}

func TestEnterQueue_ReadyUserStaysReady(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(queued())
	ctx := context.Background()

	require.NoError(t, f.queue.GrantReady(ctx, event.ID, "user-1", time.Minute))

	pos, err := f.svc.EnterQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusReady, pos.Status)
	assert.Zero(t, pos.Position)
}

func TestEnterQueue_EventNotOpen(t *testing.T) {
	tests := []struct {
		name  string
		event *model.Event
	}{
		{"scheduled", &model.Event{Status: model.EventStatusScheduled, OpenAt: now.Add(time.Hour), CloseAt: now.Add(2 * time.Hour)}},
		{"open but past close", &model.Event{Status: model.EventStatusOpen, OpenAt: now.Add(-2 * time.Hour), CloseAt: now.Add(-time.Hour)}},
		{"cancelled", &model.Event{Status: model.EventStatusCancelled, OpenAt: now.Add(-time.Hour), CloseAt: now.Add(time.Hour)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			event := f.store.Put(tt.event)

			_, err := f.svc.EnterQueue(context.Background(), event.ID, "user-1")
			require.Error(t, err)
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, http.StatusPreconditionFailed, appErr.StatusCode())
			assert.Equal(t, apperrors.ReasonEventNotOpen, appErr.Reason())
		})
	}
}

func TestEnterQueue_EventNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnterQueue(context.Background(), "65f000000000000000000000", "user-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperrors.AsAppError(err).StatusCode())
}

func TestEnterQueue_NoQueueEventAdmitsDirectly(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(model.EventSettings{UseQueue: false})

	pos, err := f.svc.EnterQueue(context.Background(), event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusReady, pos.Status)

	size, err := f.queue.Size(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestGetPosition_States(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(queued())
	ctx := context.Background()

	pos, err := f.svc.GetPosition(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusNotInQueue, pos.Status)
	assert.EqualValues(t, -1, pos.Position)

	_, err = f.svc.EnterQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	pos, err = f.svc.GetPosition(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, pos.Status)
	assert.EqualValues(t, 1, pos.Position)

	promoted, err := f.queue.Promote(ctx, event.ID, 1, 600*time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"user-1"}, promoted)

	pos, err = f.svc.GetPosition(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusReady, pos.Status)
	assert.Zero(t, pos.Position)

	f.mr.FastForward(601 * time.Second)
	pos, err = f.svc.GetPosition(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusNotInQueue, pos.Status)
}

func TestLeaveQueue(t *testing.T) {
	f := newFixture(t)
	event := f.openEvent(queued())
	ctx := context.Background()

	_, err := f.svc.EnterQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	_, err = f.svc.EnterQueue(ctx, event.ID, "user-2")
	require.NoError(t, err)

	removed, err := f.svc.LeaveQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.LeaveQueue(ctx, event.ID, "user-1")
	require.NoError(t, err)
	assert.False(t, removed)

	pos, err := f.svc.GetPosition(ctx, event.ID, "user-2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pos.Position)
}
