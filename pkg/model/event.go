package model

import "time"

type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusScheduled EventStatus = "SCHEDULED"
	EventStatusOpen      EventStatus = "OPEN"
	EventStatusClosed    EventStatus = "CLOSED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// EventSettings is stored as a sub-document of the event. Zero values mean
// "use the service default" and are filled by WithDefaults.
type EventSettings struct {
	UseQueue               bool `json:"use_queue" bson:"use_queue"`
	QueueBatchSize         int  `json:"queue_batch_size" bson:"queue_batch_size" validate:"omitempty,min=1,max=10000"`
	ReservationTimeLimit   int  `json:"reservation_time_limit" bson:"reservation_time_limit" validate:"omitempty,min=30,max=86400"`
	MaxReservationsPerUser int  `json:"max_reservations_per_user" bson:"max_reservations_per_user" validate:"omitempty,min=1,max=100"`
	RequirePayment         bool `json:"require_payment" bson:"require_payment"`
}

func (s EventSettings) WithDefaults(batchSize int, timeLimit time.Duration, maxPerUser int) EventSettings {
	if s.QueueBatchSize <= 0 {
		s.QueueBatchSize = batchSize
	}
	if s.ReservationTimeLimit <= 0 {
		s.ReservationTimeLimit = int(timeLimit / time.Second)
	}
	if s.MaxReservationsPerUser <= 0 {
		s.MaxReservationsPerUser = maxPerUser
	}
	return s
}

// BatchSize returns the event's promotion batch, or fallback when unset.
func (s EventSettings) BatchSize(fallback int) int {
	if s.QueueBatchSize > 0 {
		return s.QueueBatchSize
	}
	return fallback
}

// ReadyTTL is how long a promoted user keeps the right to reserve.
func (s EventSettings) ReadyTTL(fallback time.Duration) time.Duration {
	if s.ReservationTimeLimit > 0 {
		return time.Duration(s.ReservationTimeLimit) * time.Second
	}
	return fallback
}

type Event struct {
	ID              string        `json:"id,omitempty" bson:"_id,omitempty"`
	CreatorID       string        `json:"creator_id" bson:"creator_id"`
	Title           string        `json:"title" bson:"title"`
	Description     string        `json:"description,omitempty" bson:"description,omitempty"`
	Status          EventStatus   `json:"status" bson:"status"`
	OpenAt          time.Time     `json:"open_at" bson:"open_at"`
	CloseAt         time.Time     `json:"close_at" bson:"close_at"`
	MaxParticipants int           `json:"max_participants" bson:"max_participants"`
	Settings        EventSettings `json:"settings" bson:"settings"`
	CreatedAt       time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

// CanReserve holds iff the event is OPEN and now is strictly inside its window.
func (e *Event) CanReserve(now time.Time) bool {
	return e.Status == EventStatusOpen && e.OpenAt.Before(now) && now.Before(e.CloseAt)
}

func (e *Event) IsOwnedBy(userID string) bool {
	return e.CreatorID == userID
}

// ShouldOpen reports whether a SCHEDULED event reached its opening time.
func (e *Event) ShouldOpen(now time.Time) bool {
	return e.Status == EventStatusScheduled && !now.Before(e.OpenAt)
}

// ShouldClose reports whether an OPEN event reached its closing time.
func (e *Event) ShouldClose(now time.Time) bool {
	return e.Status == EventStatusOpen && !now.Before(e.CloseAt)
}

type EventCreate struct {
	Title           string         `json:"title" validate:"required,notblank,min=1,max=200"`
	Description     string         `json:"description,omitempty" validate:"omitempty,max=5000"`
	OpenAt          time.Time      `json:"open_at" validate:"required"`
	CloseAt         time.Time      `json:"close_at" validate:"required,gtfield=OpenAt"`
	MaxParticipants int            `json:"max_participants" validate:"required,min=1,max=1000000"`
	Settings        *EventSettings `json:"settings,omitempty" validate:"omitempty"`
	Slots           []SlotCreate   `json:"slots,omitempty" validate:"omitempty,max=100,dive"`
}

// EventView is an event with its slots and live capacity figures.
type EventView struct {
	*Event
	Slots        []*Slot `json:"slots,omitempty"`
	Participants int64   `json:"participants"`
	Remaining    int64   `json:"remaining"`
}
