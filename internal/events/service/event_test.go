package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"queuegate/internal/events/eventstest"
	"queuegate/internal/events/validator"
	"queuegate/internal/queue"
	"queuegate/internal/stock"
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

type fakeReservationStore struct {
	active  map[string]int64
	deleted []string
}

func (f *fakeReservationStore) CountActiveByEvent(_ context.Context, eventID string) (int64, error) {
	return f.active[eventID], nil
}

func (f *fakeReservationStore) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	f.deleted = append(f.deleted, eventID)
	n := f.active[eventID]
	delete(f.active, eventID)
	return n, nil
}

type fixture struct {
	svc          EventService
	store        *eventstest.Store
	reservations *fakeReservationStore
	ledger       stock.Ledger
	queue        queue.AdmissionQueue
	clock        *clock.Manual
}

var baseTime = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Discard()
	cfg := config.Default(log)

	f := &fixture{
		store:        eventstest.NewStore(),
		reservations: &fakeReservationStore{active: map[string]int64{}},
		ledger:       stock.NewRedisLedger(rdb),
		queue:        queue.NewRedisQueue(rdb),
		clock:        clock.NewManual(baseTime),
	}
	f.svc = NewEventService(
		f.store,
		f.store.Slots(),
		f.reservations,
		f.ledger,
		f.queue,
		validator.NewEventValidator(log),
		f.clock,
		cfg,
	)
	return f
}

func validCreate() *model.EventCreate {
	return &model.EventCreate{
		Title:           "  Summer   Festival ",
		OpenAt:          baseTime.Add(time.Hour),
		CloseAt:         baseTime.Add(3 * time.Hour),
		MaxParticipants: 100,
	}
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.StatusCode()
}

func TestCreate_AppliesDefaultsAndSanitizes(t *testing.T) {
	f := newFixture(t)

	view, err := f.svc.Create(context.Background(), "creator-1", validCreate())
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Summer Festival", view.Title)
	assert.Equal(t, model.EventStatusDraft, view.Status)
	assert.True(t, view.Settings.UseQueue)
	assert.Equal(t, config.DefaultQueueBatchSize, view.Settings.QueueBatchSize)
	assert.Equal(t, config.DefaultReservationTimeLimitSec, view.Settings.ReservationTimeLimit)
	assert.Equal(t, config.DefaultMaxReservationsPerUser, view.Settings.MaxReservationsPerUser)
}

func TestCreate_WithSlots(t *testing.T) {
	f := newFixture(t)
	req := validCreate()
	req.Slots = []model.SlotCreate{
		{Name: "VIP", Quantity: 10, Price: 5000},
		{Name: "General", Quantity: 90, Price: 1000},
	}

	view, err := f.svc.Create(context.Background(), "creator-1", req)
	require.NoError(t, err)
	require.Len(t, view.Slots, 2)
	for _, slot := range view.Slots {
		assert.Equal(t, view.ID, slot.EventID)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.EventCreate)
	}{
		{"blank title", func(r *model.EventCreate) { r.Title = "   " }},
		{"close before open", func(r *model.EventCreate) { r.CloseAt = r.OpenAt.Add(-time.Minute) }},
		{"zero participants", func(r *model.EventCreate) { r.MaxParticipants = 0 }},
		{"slots exceed capacity", func(r *model.EventCreate) {
			r.Slots = []model.SlotCreate{{Name: "A", Quantity: 80}, {Name: "B", Quantity: 30}}
		}},
		{"duplicate slot names", func(r *model.EventCreate) {
			r.Slots = []model.SlotCreate{{Name: "VIP", Quantity: 1}, {Name: "vip", Quantity: 1}}
		}},
		{"batch size out of range", func(r *model.EventCreate) {
			r.Settings = &model.EventSettings{QueueBatchSize: 20000}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := validCreate()
			tt.mutate(req)

			_, err := f.svc.Create(context.Background(), "creator-1", req)
			require.Error(t, err)
			assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
		})
	}
}

func TestPublish_InitializesEventCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, "creator-1", validCreate())
	require.NoError(t, err)

	event, err := f.svc.Publish(ctx, view.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusScheduled, event.Status)
	assert.Equal(t, model.EventStatusScheduled, f.store.Status(view.ID))

	remaining, err := f.ledger.Peek(ctx, stock.EventResource(view.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 100, remaining)
}

func TestPublish_InitializesSlotCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := validCreate()
	req.Slots = []model.SlotCreate{{Name: "VIP", Quantity: 7}}

	view, err := f.svc.Create(ctx, "creator-1", req)
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, view.ID, "creator-1")
	require.NoError(t, err)

	remaining, err := f.ledger.Peek(ctx, stock.SlotResource(view.Slots[0].ID))
	require.NoError(t, err)
	assert.EqualValues(t, 7, remaining)

	eventWide, err := f.ledger.Peek(ctx, stock.EventResource(view.ID))
	require.NoError(t, err)
	assert.Zero(t, eventWide)
}

func TestPublish_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, "creator-1", validCreate())
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, view.ID, "someone-else")
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))

	_, err = f.svc.Publish(ctx, view.ID, "creator-1")
	require.NoError(t, err)

	_, err = f.svc.Publish(ctx, view.ID, "creator-1")
	assert.Equal(t, http.StatusPreconditionFailed, statusOf(t, err))
	assert.Equal(t, apperrors.ReasonInvalidStatus, apperrors.AsAppError(err).Reason())
}

func TestGet_ReportsParticipantsAndRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, "creator-1", validCreate())
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, view.ID, "creator-1")
	require.NoError(t, err)

	_, err = f.ledger.Decrement(ctx, stock.EventResource(view.ID))
	require.NoError(t, err)
	f.reservations.active[view.ID] = 1

	got, err := f.svc.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Participants)
	assert.EqualValues(t, 99, got.Remaining)
}

func TestGet_NotFoundAndInvalidID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), "not-an-object-id")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	_, err = f.svc.Get(context.Background(), "65f000000000000000000000")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestListPublic_OnlyScheduledAndOpen(t *testing.T) {
	f := newFixture(t)

	for _, status := range []model.EventStatus{
		model.EventStatusDraft,
		model.EventStatusScheduled,
		model.EventStatusOpen,
		model.EventStatusClosed,
		model.EventStatusCancelled,
	} {
		f.store.Put(&model.Event{Title: string(status), Status: status, OpenAt: baseTime})
	}

	events, total, err := f.svc.ListPublic(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	for _, e := range events {
		assert.Contains(t, []model.EventStatus{model.EventStatusScheduled, model.EventStatusOpen}, e.Status)
	}
}

func TestAddSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Create(ctx, "creator-1", validCreate())
	require.NoError(t, err)

	slot, err := f.svc.AddSlot(ctx, view.ID, "creator-1", &model.SlotCreate{Name: " Balcony ", Quantity: 20})
	require.NoError(t, err)
	assert.Equal(t, "Balcony", slot.Name)

	remaining, err := f.ledger.Peek(ctx, stock.SlotResource(slot.ID))
	require.NoError(t, err)
	assert.EqualValues(t, 20, remaining)

	_, err = f.svc.AddSlot(ctx, view.ID, "creator-1", &model.SlotCreate{Name: "Floor", Quantity: 81})
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))

	_, err = f.svc.AddSlot(ctx, view.ID, "intruder", &model.SlotCreate{Name: "Floor", Quantity: 1})
	assert.Equal(t, http.StatusForbidden, statusOf(t, err))
}

func TestAddSlot_RejectedOnceOpen(t *testing.T) {
	f := newFixture(t)
	event := f.store.Put(&model.Event{CreatorID: "creator-1", Status: model.EventStatusOpen, MaxParticipants: 10})

	_, err := f.svc.AddSlot(context.Background(), event.ID, "creator-1", &model.SlotCreate{Name: "Late", Quantity: 1})
	assert.Equal(t, http.StatusPreconditionFailed, statusOf(t, err))
}

func TestCancel_ClearsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.store.Put(&model.Event{CreatorID: "creator-1", Status: model.EventStatusOpen, MaxParticipants: 10})

	_, err := f.queue.Enter(ctx, event.ID, "user-1", baseTime)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, event.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusCancelled, cancelled.Status)

	size, err := f.queue.Size(ctx, event.ID)
	require.NoError(t, err)
	assert.Zero(t, size)

	again, err := f.svc.Cancel(ctx, event.ID, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusCancelled, again.Status)
}

func TestCancel_ClosedEventRejected(t *testing.T) {
	f := newFixture(t)
	event := f.store.Put(&model.Event{CreatorID: "creator-1", Status: model.EventStatusClosed})

	_, err := f.svc.Cancel(context.Background(), event.ID, "creator-1")
	assert.Equal(t, http.StatusPreconditionFailed, statusOf(t, err))
}

func TestDelete_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := validCreate()
	req.Slots = []model.SlotCreate{{Name: "VIP", Quantity: 5}}

	view, err := f.svc.Create(ctx, "creator-1", req)
	require.NoError(t, err)
	_, err = f.svc.Publish(ctx, view.ID, "creator-1")
	require.NoError(t, err)
	f.reservations.active[view.ID] = 2

	require.NoError(t, f.svc.Delete(ctx, view.ID, "creator-1"))

	assert.Equal(t, []string{view.ID}, f.reservations.deleted)
	slots, err := f.store.Slots().FindByEvent(ctx, view.ID)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.svc.Get(ctx, view.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	_, err = f.ledger.Decrement(ctx, stock.SlotResource(view.Slots[0].ID))
	assert.ErrorIs(t, err, stock.ErrSoldOut)
}
