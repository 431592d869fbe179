package service

import (
	"context"
	"errors"
	"fmt"

	eventserrors "queuegate/internal/events/errors"
	eventsrepository "queuegate/internal/events/repository"
	"queuegate/internal/lock"
	"queuegate/internal/notifications"
	"queuegate/internal/queue"
	reservationserrors "queuegate/internal/reservations/errors"
	"queuegate/internal/reservations/repository"
	"queuegate/internal/reservations/validator"
	"queuegate/internal/stock"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/model"
)

type ReservationService interface {
	Reserve(ctx context.Context, eventID, userID, slotID string) (*model.Reservation, error)
	Cancel(ctx context.Context, reservationID, userID string) error
	Expire(ctx context.Context, reservationID string) (*model.Reservation, error)
	Get(ctx context.Context, reservationID, userID string) (*model.Reservation, error)
	ListMine(ctx context.Context, userID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	ListParticipants(ctx context.Context, eventID, requesterID string, limit int, offset int64) ([]*model.Reservation, int64, error)
}

type reservationService struct {
	reservations repository.ReservationRepository
	events       eventsrepository.EventRepository
	slots        eventsrepository.SlotRepository
	ledger       stock.Ledger
	queue        queue.AdmissionQueue
	locker       lock.Locker
	notifier     notifications.Notifier
	validator    *validator.ReservationValidator
	clock        clock.Clock
	cfg          *config.Config
}

func NewReservationService(
	reservations repository.ReservationRepository,
	events eventsrepository.EventRepository,
	slots eventsrepository.SlotRepository,
	ledger stock.Ledger,
	queue queue.AdmissionQueue,
	locker lock.Locker,
	notifier notifications.Notifier,
	validator *validator.ReservationValidator,
	clk clock.Clock,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		reservations: reservations,
		events:       events,
		slots:        slots,
		ledger:       ledger,
		queue:        queue,
		locker:       locker,
		notifier:     notifier,
		validator:    validator,
		clock:        clk,
		cfg:          cfg,
	}
}

// Reserve confirms one place for userID. Checks that need no lock run first;
// the stock decrement and the insert run under the per (event, user) lock so
// a retried request can never confirm twice. The reservation is created
// CONFIRMED or not at all.
func (s *reservationService) Reserve(ctx context.Context, eventID, userID, slotID string) (*model.Reservation, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user ID is required")
	}

	req := &model.ReservationCreate{EventID: eventID, SlotID: slotID}
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, apperrors.Validation("Reservation validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, s.mapError(err, eventID, "Failed to retrieve event")
	}

	if !event.CanReserve(s.clock.Now()) {
		return nil, apperrors.PreconditionFailed(apperrors.ReasonEventNotOpen, "Event is not open for reservations").
			WithCause(eventserrors.ErrEventNotOpen)
	}

	res, err := s.resource(ctx, event, slotID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNoActive(ctx, eventID, userID); err != nil {
		return nil, err
	}

	if event.Settings.UseQueue {
		ready, err := s.queue.IsReady(ctx, eventID, userID)
		if err != nil {
			s.cfg.Log.Error("Failed to check ready grant", "event_id", eventID, "user_id", userID, "error", err)
			return nil, apperrors.Internal("Failed to check queue admission", err)
		}
		if !ready {
			return nil, apperrors.PreconditionFailed(apperrors.ReasonQueueNotReady, "Wait for your turn in the queue").
				WithCause(reservationserrors.ErrQueueNotReady)
		}
	}

	var reservation *model.Reservation
	err = s.locker.WithUserReservationLock(ctx, eventID, userID, func(lockCtx context.Context) error {
		var err error
		reservation, err = s.confirm(lockCtx, event, userID, slotID, res)
		return err
	})
	if err != nil {
		return nil, s.mapError(err, eventID, "Failed to create reservation")
	}

	s.cfg.Log.Info("Reservation confirmed",
		"reservation_id", reservation.ID,
		"event_id", eventID,
		"user_id", userID,
		"resource", res.String(),
	)

	s.notify(ctx, model.ReservationConfirmedNotification(reservation, s.clock.Now()))
	return reservation, nil
}

// confirm runs under the reservation lock.
func (s *reservationService) confirm(ctx context.Context, event *model.Event, userID, slotID string, res stock.Resource) (*model.Reservation, error) {
	// A request that held the lock just before us may have confirmed.
	if err := s.ensureNoActive(ctx, event.ID, userID); err != nil {
		return nil, err
	}

	remaining, err := s.ledger.Decrement(ctx, res)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	reservation := model.NewReservation(event.ID, userID, slotID, now)
	if err := reservation.Transition(model.ReservationStatusConfirmed, now); err != nil {
		s.compensate(res, event.ID, userID)
		return nil, err
	}

	err = s.reservations.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if slotID != "" {
			if _, err := s.slots.LockForUpdate(txCtx, slotID); err != nil {
				return err
			}
		}
		return s.reservations.Create(txCtx, reservation)
	})
	if err != nil {
		s.compensate(res, event.ID, userID)
		return nil, err
	}

	if err := s.queue.ConsumeReady(ctx, event.ID, userID); err != nil {
		s.cfg.Log.Warn("Failed to consume ready grant", "event_id", event.ID, "user_id", userID, "error", err)
	}
	if _, err := s.queue.Leave(ctx, event.ID, userID); err != nil {
		s.cfg.Log.Warn("Failed to remove user from queue", "event_id", event.ID, "user_id", userID, "error", err)
	}

	s.cfg.Log.Debug("Stock decremented", "resource", res.String(), "remaining", remaining)
	return reservation, nil
}

// compensate gives back a unit taken by a decrement whose reservation was
// never persisted. It uses its own context so a cancelled request still
// returns the unit.
func (s *reservationService) compensate(res stock.Resource, eventID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	if _, err := s.ledger.Increment(ctx, res); err != nil {
		s.cfg.Log.Error("Failed to compensate stock decrement",
			"resource", res.String(),
			"event_id", eventID,
			"user_id", userID,
			"error", err,
		)
	}
}

// Cancel is idempotent. The conditional status update makes sure two
// concurrent cancels give the unit back once.
func (s *reservationService) Cancel(ctx context.Context, reservationID, userID string) error {
	reservation, err := s.findOwned(ctx, reservationID, userID)
	if err != nil {
		return err
	}

	if reservation.Status == model.ReservationStatusCancelled {
		return nil
	}

	changed, err := s.transition(ctx, reservation, model.ReservationStatusCancelled)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.cfg.Log.Info("Reservation cancelled",
		"reservation_id", reservation.ID,
		"event_id", reservation.EventID,
		"user_id", userID,
	)

	s.notify(ctx, model.ReservationCancelledNotification(reservation, s.clock.Now()))
	return nil
}

// Expire releases a PENDING reservation whose confirmation never arrived.
func (s *reservationService) Expire(ctx context.Context, reservationID string) (*model.Reservation, error) {
	reservation, err := s.findReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if reservation.Status == model.ReservationStatusExpired {
		return reservation, nil
	}

	changed, err := s.transition(ctx, reservation, model.ReservationStatusExpired)
	if err != nil {
		return nil, err
	}
	if changed {
		s.cfg.Log.Info("Reservation expired",
			"reservation_id", reservation.ID,
			"event_id", reservation.EventID,
		)
	}
	return reservation, nil
}

// transition applies to, persists it conditionally and returns the unit to
// the ledger. It reports false when a concurrent caller already applied the
// same transition.
func (s *reservationService) transition(ctx context.Context, reservation *model.Reservation, to model.ReservationStatus) (bool, error) {
	from := reservation.Status
	if err := reservation.Transition(to, s.clock.Now()); err != nil {
		return false, apperrors.PreconditionFailed(apperrors.ReasonInvalidStatus,
			fmt.Sprintf("Reservation in status %s cannot become %s", from, to)).WithCause(err)
	}

	if err := s.reservations.UpdateStatus(ctx, reservation, from); err != nil {
		if errors.Is(err, reservationserrors.ErrStatusChanged) {
			current, findErr := s.findReservation(ctx, reservation.ID)
			if findErr == nil && current.Status == to {
				*reservation = *current
				return false, nil
			}
			return false, apperrors.Conflict("Reservation changed concurrently, retry").WithCause(err).Retryable()
		}
		return false, s.mapError(err, reservation.ID, "Failed to update reservation")
	}

	res := stock.For(reservation.EventID, reservation.SlotID)
	if _, err := s.ledger.Increment(ctx, res); err != nil {
		s.cfg.Log.Error("Failed to return stock",
			"reservation_id", reservation.ID,
			"resource", res.String(),
			"error", err,
		)
		return false, apperrors.Internal("Reservation released but stock could not be returned", err)
	}
	return true, nil
}

func (s *reservationService) Get(ctx context.Context, reservationID, userID string) (*model.Reservation, error) {
	return s.findOwned(ctx, reservationID, userID)
}

func (s *reservationService) ListMine(ctx context.Context, userID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if userID == "" {
		return nil, 0, apperrors.Unauthorized("user ID is required")
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	reservations, total, err := s.reservations.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list reservations", "user_id", userID, "error", err)
		return nil, 0, apperrors.Internal("Failed to list reservations", err)
	}
	return reservations, total, nil
}

// ListParticipants returns the event's active reservations to its creator.
func (s *reservationService) ListParticipants(ctx context.Context, eventID, requesterID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, 0, s.mapError(err, eventID, "Failed to retrieve event")
	}
	if !event.IsOwnedBy(requesterID) {
		return nil, 0, apperrors.Forbidden(eventserrors.ErrForbidden.Error()).WithCause(eventserrors.ErrForbidden)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	reservations, total, err := s.reservations.ListActiveByEvent(ctx, eventID, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list participants", "event_id", eventID, "error", err)
		return nil, 0, apperrors.Internal("Failed to list participants", err)
	}
	return reservations, total, nil
}

// resource picks the counter to decrement. Events with slots are only
// reservable per slot.
func (s *reservationService) resource(ctx context.Context, event *model.Event, slotID string) (stock.Resource, error) {
	if slotID == "" {
		slots, err := s.slots.FindByEvent(ctx, event.ID)
		if err != nil {
			return stock.Resource{}, apperrors.Internal("Failed to list slots", err)
		}
		if len(slots) > 0 {
			return stock.Resource{}, apperrors.InvalidInput("slot_id is required for events with slots")
		}
		return stock.EventResource(event.ID), nil
	}

	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		return stock.Resource{}, s.mapError(err, slotID, "Failed to retrieve slot")
	}
	if slot.EventID != event.ID {
		return stock.Resource{}, apperrors.NotFoundWithID("Slot", slotID).WithCause(reservationserrors.ErrSlotMismatch)
	}
	return stock.SlotResource(slot.ID), nil
}

func (s *reservationService) ensureNoActive(ctx context.Context, eventID, userID string) error {
	_, err := s.reservations.FindActive(ctx, eventID, userID)
	switch {
	case err == nil:
		return alreadyExists(reservationserrors.ErrReservationAlreadyExists)
	case errors.Is(err, reservationserrors.ErrReservationNotFound):
		return nil
	default:
		return err
	}
}

func (s *reservationService) findReservation(ctx context.Context, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to retrieve reservation")
	}
	return reservation, nil
}

func (s *reservationService) findOwned(ctx context.Context, id, userID string) (*model.Reservation, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user ID is required")
	}

	reservation, err := s.findReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.IsOwnedBy(userID) {
		return nil, apperrors.Forbidden(reservationserrors.ErrForbidden.Error()).WithCause(reservationserrors.ErrForbidden)
	}
	return reservation, nil
}

func (s *reservationService) notify(ctx context.Context, n model.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.cfg.Log.Warn("Failed to publish notification",
			"type", n.Type,
			"user_id", n.UserID,
			"error", err,
		)
	}
}

func alreadyExists(cause error) *apperrors.AppError {
	return apperrors.Conflict("An active reservation already exists for this event").
		WithDetails(map[string]any{apperrors.DetailReason: apperrors.ReasonAlreadyExists}).
		WithCause(cause)
}

func (s *reservationService) mapError(err error, id, message string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, stock.ErrSoldOut):
		return apperrors.PreconditionFailed(apperrors.ReasonSoldOut, "Sold out").WithCause(err)
	case errors.Is(err, lock.ErrLockTimeout):
		return apperrors.Conflict("Another request for this reservation is in progress").
			WithDetails(map[string]any{apperrors.DetailReason: apperrors.ReasonLockContention}).
			WithCause(err).
			Retryable()
	case errors.Is(err, reservationserrors.ErrReservationAlreadyExists):
		return alreadyExists(err)
	case errors.Is(err, reservationserrors.ErrReservationNotFound):
		return apperrors.NotFoundWithID("Reservation", id).WithCause(err)
	case errors.Is(err, reservationserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid reservation ID format").WithCause(err)
	case errors.Is(err, eventserrors.ErrEventNotFound):
		return apperrors.NotFoundWithID("Event", id).WithCause(err)
	case errors.Is(err, eventserrors.ErrSlotNotFound):
		return apperrors.NotFoundWithID("Slot", id).WithCause(err)
	case errors.Is(err, eventserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid ID format").WithCause(err)
	case errors.Is(err, model.ErrIllegalTransition):
		return apperrors.PreconditionFailed(apperrors.ReasonInvalidStatus, "Illegal reservation status change").WithCause(err)
	}
	s.cfg.Log.Error(message, "id", id, "error", err)
	return apperrors.Internal(message, err)
}
