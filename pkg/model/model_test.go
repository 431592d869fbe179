package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservation_Transition(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from       ReservationStatus
		to         ReservationStatus
		wantErr    bool
		wantActive bool
	}{
		{"pending to confirmed", ReservationStatusPending, ReservationStatusConfirmed, false, true},
		{"pending to cancelled", ReservationStatusPending, ReservationStatusCancelled, false, false},
		{"pending to expired", ReservationStatusPending, ReservationStatusExpired, false, false},
		{"confirmed to cancelled", ReservationStatusConfirmed, ReservationStatusCancelled, false, false},
		{"confirmed to expired", ReservationStatusConfirmed, ReservationStatusExpired, true, true},
		{"confirmed to pending", ReservationStatusConfirmed, ReservationStatusPending, true, true},
		{"cancelled to confirmed", ReservationStatusCancelled, ReservationStatusConfirmed, true, false},
		{"cancelled to cancelled", ReservationStatusCancelled, ReservationStatusCancelled, true, false},
		{"expired to confirmed", ReservationStatusExpired, ReservationStatusConfirmed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Reservation{Status: tt.from, Active: tt.from.IsActive()}

			err := r.Transition(tt.to, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIllegalTransition))
				assert.Equal(t, tt.from, r.Status, "status must not change on illegal move")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, r.Status)
			}
			assert.Equal(t, tt.wantActive, r.Active)
		})
	}
}

func TestReservation_TransitionStampsTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewReservation("e1", "u1", "", now)

	require.NoError(t, r.Transition(ReservationStatusConfirmed, now))
	require.NotNil(t, r.ConfirmedAt)
	assert.Equal(t, now, *r.ConfirmedAt)

	later := now.Add(time.Hour)
	require.NoError(t, r.Transition(ReservationStatusCancelled, later))
	require.NotNil(t, r.CancelledAt)
	assert.Equal(t, later, *r.CancelledAt)
	assert.False(t, r.Active)
}

func TestEvent_CanReserve(t *testing.T) {
	openAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	closeAt := openAt.Add(2 * time.Hour)

	tests := []struct {
		name   string
		status EventStatus
		now    time.Time
		want   bool
	}{
		{"open inside window", EventStatusOpen, openAt.Add(time.Minute), true},
		{"open at exact open time", EventStatusOpen, openAt, false},
		{"open at exact close time", EventStatusOpen, closeAt, false},
		{"open after close", EventStatusOpen, closeAt.Add(time.Second), false},
		{"scheduled inside window", EventStatusScheduled, openAt.Add(time.Minute), false},
		{"closed inside window", EventStatusClosed, openAt.Add(time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Event{Status: tt.status, OpenAt: openAt, CloseAt: closeAt}
			assert.Equal(t, tt.want, e.CanReserve(tt.now))
		})
	}
}

func TestEvent_Lifecycle(t *testing.T) {
	openAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	e := &Event{Status: EventStatusScheduled, OpenAt: openAt, CloseAt: openAt.Add(time.Hour)}

	assert.False(t, e.ShouldOpen(openAt.Add(-time.Second)))
	assert.True(t, e.ShouldOpen(openAt))

	e.Status = EventStatusOpen
	assert.False(t, e.ShouldClose(openAt.Add(time.Minute)))
	assert.True(t, e.ShouldClose(openAt.Add(time.Hour)))
}

func TestEventSettings_WithDefaults(t *testing.T) {
	s := EventSettings{UseQueue: true, QueueBatchSize: 2}.WithDefaults(100, 600*time.Second, 1)

	assert.Equal(t, 2, s.QueueBatchSize)
	assert.Equal(t, 600, s.ReservationTimeLimit)
	assert.Equal(t, 1, s.MaxReservationsPerUser)
	assert.Equal(t, 10*time.Minute, s.ReadyTTL(time.Second))
	assert.Equal(t, 7, EventSettings{}.BatchSize(7))
}

func TestEstimateWaitSeconds(t *testing.T) {
	tests := []struct {
		position int64
		batch    int
		want     int64
	}{
		{1, 100, 0},
		{99, 100, 0},
		{100, 100, 5},
		{250, 100, 10},
		{3, 2, 5},
		{0, 100, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateWaitSeconds(tt.position, tt.batch, 5), "position %d batch %d", tt.position, tt.batch)
	}
}

func TestNotifications(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	ready := QueueReadyNotification("e1", "u1", 10*time.Minute, now)
	assert.Equal(t, NotificationQueueReady, ready.Type)
	assert.Equal(t, int64(600), ready.Data["ttl_seconds"])

	update := QueueUpdateNotification(QueuePosition{EventID: "e1", UserID: "u2", Position: 3, TotalInQueue: 10}, now)
	assert.Equal(t, "u2", update.UserID)
	assert.Equal(t, int64(3), update.Data["position"])

	r := &Reservation{ID: "r1", EventID: "e1", UserID: "u3", SlotID: "s1", Status: ReservationStatusConfirmed}
	confirmed := ReservationConfirmedNotification(r, now)
	assert.Equal(t, "s1", confirmed.Data["slot_id"])
	assert.Equal(t, "CONFIRMED", confirmed.Data["status"])
}
