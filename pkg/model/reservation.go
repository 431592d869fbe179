package model

import (
	"errors"
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

var ErrIllegalTransition = errors.New("illegal reservation status transition")

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusExpired},
	ReservationStatusConfirmed: {ReservationStatusCancelled},
}

// IsActive reports whether a reservation in this status holds capacity.
func (s ReservationStatus) IsActive() bool {
	return s == ReservationStatusPending || s == ReservationStatusConfirmed
}

func (s ReservationStatus) CanTransitionTo(to ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Reservation struct {
	ID          string            `json:"id,omitempty" bson:"_id,omitempty"`
	EventID     string            `json:"event_id" bson:"event_id"`
	UserID      string            `json:"user_id" bson:"user_id"`
	SlotID      string            `json:"slot_id,omitempty" bson:"slot_id,omitempty"`
	Status      ReservationStatus `json:"status" bson:"status"`
	Active      bool              `json:"-" bson:"active"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time        `json:"expired_at,omitempty" bson:"expired_at,omitempty"`
}

func NewReservation(eventID, userID, slotID string, now time.Time) *Reservation {
	return &Reservation{
		EventID:   eventID,
		UserID:    userID,
		SlotID:    slotID,
		Status:    ReservationStatusPending,
		Active:    true,
		CreatedAt: now,
	}
}

// Transition moves the reservation to status to, stamping the matching
// timestamp. Moves outside the lifecycle return ErrIllegalTransition and leave
// the reservation untouched.
func (r *Reservation) Transition(to ReservationStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, to)
	}

	at := now
	switch to {
	case ReservationStatusConfirmed:
		r.ConfirmedAt = &at
	case ReservationStatusCancelled:
		r.CancelledAt = &at
	case ReservationStatusExpired:
		r.ExpiredAt = &at
	}
	r.Status = to
	r.Active = to.IsActive()
	return nil
}

func (r *Reservation) IsOwnedBy(userID string) bool {
	return r.UserID == userID
}

type ReservationCreate struct {
	EventID string `json:"event_id" validate:"required,mongodb"`
	SlotID  string `json:"slot_id,omitempty" validate:"omitempty,mongodb"`
}

type ReservationAction string

const (
	ReservationActionCreate ReservationAction = "create"
	ReservationActionCancel ReservationAction = "cancel"
	ReservationActionExpire ReservationAction = "expire"
)

// ReservationCommand is the payload of the asynchronous reservation topic.
type ReservationCommand struct {
	Action        ReservationAction `json:"action" validate:"required,oneof=create cancel expire"`
	EventID       string            `json:"event_id,omitempty" validate:"required_if=Action create,omitempty,mongodb"`
	UserID        string            `json:"user_id" validate:"required_unless=Action expire"`
	SlotID        string            `json:"slot_id,omitempty" validate:"omitempty,mongodb"`
	ReservationID string            `json:"reservation_id,omitempty" validate:"required_unless=Action create,omitempty,mongodb"`
}

// Key orders commands for one user on one partition.
func (c ReservationCommand) Key() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.ReservationID
}
