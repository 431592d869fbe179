package errors

import (
	"errors"

	"queuegate/internal/lock"
	"queuegate/internal/stock"
	"queuegate/pkg/model"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrReservationAlreadyExists means the user already holds an active
	// reservation for the event.
	ErrReservationAlreadyExists = errors.New("reservation already exists")

	ErrInvalidID = errors.New("invalid reservation ID format")

	ErrForbidden = errors.New("reservation belongs to another user")

	// ErrQueueNotReady means the event admits through the queue and the user
	// holds no live ready grant.
	ErrQueueNotReady = errors.New("user has not been admitted from the queue")

	// ErrSlotMismatch means the requested slot belongs to another event.
	ErrSlotMismatch = errors.New("slot does not belong to event")

	// ErrStatusChanged means a conditional update found the reservation in
	// another status than the caller read.
	ErrStatusChanged = errors.New("reservation status changed concurrently")

	ErrIllegalTransition = model.ErrIllegalTransition
	ErrSoldOut           = stock.ErrSoldOut
	ErrLockTimeout       = lock.ErrLockTimeout
)
