package errors

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")

	ErrSlotNotFound = errors.New("slot not found")

	ErrInvalidID = errors.New("invalid event ID format")

	ErrForbidden = errors.New("only the event creator may do this")

	ErrEventNotOpen = errors.New("event is not open for reservations")

	// ErrStatusChanged means a conditional status update found the event in
	// another status than the caller read.
	ErrStatusChanged = errors.New("event status changed concurrently")
)
