package service

import (
	"context"
	"errors"
	"fmt"

	eventserrors "queuegate/internal/events/errors"
	"queuegate/internal/events/repository"
	"queuegate/internal/events/validator"
	"queuegate/internal/queue"
	"queuegate/internal/stock"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/model"
	"queuegate/pkg/sanitizer"
)

var publicStatuses = []model.EventStatus{model.EventStatusScheduled, model.EventStatusOpen}

// ReservationStore is the part of the reservation store events need for
// participant counts and cascade deletes.
type ReservationStore interface {
	CountActiveByEvent(ctx context.Context, eventID string) (int64, error)
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
}

type EventService interface {
	Create(ctx context.Context, creatorID string, req *model.EventCreate) (*model.EventView, error)
	Get(ctx context.Context, id string) (*model.EventView, error)
	ListPublic(ctx context.Context, limit int, offset int64) ([]*model.Event, int64, error)
	ListSlots(ctx context.Context, eventID string) ([]*model.Slot, error)
	AddSlot(ctx context.Context, eventID, userID string, req *model.SlotCreate) (*model.Slot, error)
	Publish(ctx context.Context, eventID, userID string) (*model.Event, error)
	Cancel(ctx context.Context, eventID, userID string) (*model.Event, error)
	Delete(ctx context.Context, eventID, userID string) error
}

type eventService struct {
	events       repository.EventRepository
	slots        repository.SlotRepository
	reservations ReservationStore
	ledger       stock.Ledger
	queue        queue.AdmissionQueue
	validator    *validator.EventValidator
	clock        clock.Clock
	cfg          *config.Config
}

func NewEventService(
	events repository.EventRepository,
	slots repository.SlotRepository,
	reservations ReservationStore,
	ledger stock.Ledger,
	queue queue.AdmissionQueue,
	validator *validator.EventValidator,
	clk clock.Clock,
	cfg *config.Config,
) EventService {
	return &eventService{
		events:       events,
		slots:        slots,
		reservations: reservations,
		ledger:       ledger,
		queue:        queue,
		validator:    validator,
		clock:        clk,
		cfg:          cfg,
	}
}

func (s *eventService) Create(ctx context.Context, creatorID string, req *model.EventCreate) (*model.EventView, error) {
	if creatorID == "" {
		return nil, apperrors.Unauthorized("creator ID is required")
	}

	s.sanitize(req)
	if err := s.validator.ValidateCreate(req); err != nil {
		s.cfg.Log.Warn("Event validation failed",
			"title", req.Title,
			"creator_id", creatorID,
			"error", err,
		)
		return nil, apperrors.Validation("Event validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	event := &model.Event{
		CreatorID:       creatorID,
		Title:           req.Title,
		Description:     req.Description,
		Status:          model.EventStatusDraft,
		OpenAt:          req.OpenAt.UTC(),
		CloseAt:         req.CloseAt.UTC(),
		MaxParticipants: req.MaxParticipants,
		Settings:        s.settings(req.Settings),
	}

	var slots []*model.Slot
	err := s.events.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := s.events.Create(txCtx, event); err != nil {
			return err
		}
		slots = make([]*model.Slot, 0, len(req.Slots))
		for _, sc := range req.Slots {
			slot := &model.Slot{
				EventID:  event.ID,
				Name:     sc.Name,
				Quantity: sc.Quantity,
				Price:    sc.Price,
			}
			if err := s.slots.Create(txCtx, slot); err != nil {
				return err
			}
			slots = append(slots, slot)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to create event",
			"title", event.Title,
			"creator_id", creatorID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to create event", err)
	}

	s.cfg.Log.Info("Event created successfully",
		"event_id", event.ID,
		"creator_id", creatorID,
		"slots", len(slots),
	)

	return &model.EventView{Event: event, Slots: slots}, nil
}

func (s *eventService) Get(ctx context.Context, id string) (*model.EventView, error) {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	slots, err := s.slots.FindByEvent(ctx, event.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to load event slots", "event_id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve event", err)
	}

	participants, err := s.reservations.CountActiveByEvent(ctx, event.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to count participants", "event_id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve event", err)
	}

	view := &model.EventView{
		Event:        event,
		Slots:        slots,
		Participants: participants,
	}

	if event.Status == model.EventStatusScheduled || event.Status == model.EventStatusOpen {
		remaining, err := s.remaining(ctx, event, slots)
		if err != nil {
			s.cfg.Log.Warn("Failed to read remaining stock", "event_id", id, "error", err)
		}
		view.Remaining = remaining
	}

	return view, nil
}

func (s *eventService) ListPublic(ctx context.Context, limit int, offset int64) ([]*model.Event, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	events, err := s.events.ListByStatus(ctx, publicStatuses, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list public events", "error", err)
		return nil, 0, apperrors.Internal("Failed to list events", err)
	}

	count, err := s.events.CountByStatus(ctx, publicStatuses)
	if err != nil {
		s.cfg.Log.Error("Failed to count public events", "error", err)
		return nil, 0, apperrors.Internal("Failed to count events", err)
	}

	return events, count, nil
}

func (s *eventService) ListSlots(ctx context.Context, eventID string) ([]*model.Slot, error) {
	if _, err := s.findEvent(ctx, eventID); err != nil {
		return nil, err
	}

	slots, err := s.slots.FindByEvent(ctx, eventID)
	if err != nil {
		s.cfg.Log.Error("Failed to list slots", "event_id", eventID, "error", err)
		return nil, apperrors.Internal("Failed to list slots", err)
	}
	return slots, nil
}

// AddSlot is allowed until the event opens. The slot's counter is set right
// away so a slot added after publishing is immediately reservable.
func (s *eventService) AddSlot(ctx context.Context, eventID, userID string, req *model.SlotCreate) (*model.Slot, error) {
	event, err := s.findOwnedEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	if event.Status != model.EventStatusDraft && event.Status != model.EventStatusScheduled {
		return nil, apperrors.PreconditionFailed(apperrors.ReasonInvalidStatus,
			fmt.Sprintf("Slots cannot be added to a %s event", event.Status))
	}

	existing, err := s.slots.FindByEvent(ctx, eventID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list slots", err)
	}

	req.Name = sanitizer.NormalizeSlotName(req.Name)
	if err := s.validator.ValidateSlot(req, existing, event.MaxParticipants); err != nil {
		return nil, apperrors.Validation("Slot validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	slot := &model.Slot{
		EventID:  eventID,
		Name:     req.Name,
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		s.cfg.Log.Error("Failed to create slot", "event_id", eventID, "error", err)
		return nil, apperrors.Internal("Failed to create slot", err)
	}

	if err := s.ledger.Initialize(ctx, stock.SlotResource(slot.ID), int64(slot.Quantity)); err != nil {
		s.cfg.Log.Error("Failed to initialize slot stock",
			"event_id", eventID,
			"slot_id", slot.ID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to initialize slot stock", err)
	}

	s.cfg.Log.Info("Slot added",
		"event_id", eventID,
		"slot_id", slot.ID,
		"quantity", slot.Quantity,
	)
	return slot, nil
}

// Publish sets the stock counters and then moves the event to SCHEDULED, so
// counters always exist before the lifecycle tick can open the event.
func (s *eventService) Publish(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := s.findOwnedEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	if event.Status != model.EventStatusDraft {
		return nil, apperrors.PreconditionFailed(apperrors.ReasonInvalidStatus,
			fmt.Sprintf("Only DRAFT events can be published, event is %s", event.Status))
	}

	slots, err := s.slots.FindByEvent(ctx, eventID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list slots", err)
	}

	if err := s.initializeStock(ctx, event, slots); err != nil {
		s.cfg.Log.Error("Failed to initialize stock", "event_id", eventID, "error", err)
		return nil, apperrors.Internal("Failed to initialize stock", err)
	}

	now := s.clock.Now()
	if err := s.events.UpdateStatus(ctx, eventID, model.EventStatusDraft, model.EventStatusScheduled, now); err != nil {
		return nil, s.mapError(err, eventID, "Failed to publish event")
	}

	event.Status = model.EventStatusScheduled
	event.UpdatedAt = now
	s.cfg.Log.Info("Event published",
		"event_id", eventID,
		"open_at", event.OpenAt,
		"slots", len(slots),
	)
	return event, nil
}

func (s *eventService) Cancel(ctx context.Context, eventID, userID string) (*model.Event, error) {
	event, err := s.findOwnedEvent(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}

	switch event.Status {
	case model.EventStatusCancelled:
		return event, nil
	case model.EventStatusClosed:
		return nil, apperrors.PreconditionFailed(apperrors.ReasonInvalidStatus, "Closed events cannot be cancelled")
	}

	now := s.clock.Now()
	if err := s.events.UpdateStatus(ctx, eventID, event.Status, model.EventStatusCancelled, now); err != nil {
		return nil, s.mapError(err, eventID, "Failed to cancel event")
	}
	event.Status = model.EventStatusCancelled
	event.UpdatedAt = now

	if err := s.queue.Clear(ctx, eventID); err != nil {
		s.cfg.Log.Error("Failed to clear queue of cancelled event", "event_id", eventID, "error", err)
	}

	s.cfg.Log.Info("Event cancelled", "event_id", eventID)
	return event, nil
}

// Delete removes the event, its slots and its reservations in one
// transaction, then drops the Redis state that belonged to it.
func (s *eventService) Delete(ctx context.Context, eventID, userID string) error {
	event, err := s.findOwnedEvent(ctx, eventID, userID)
	if err != nil {
		return err
	}

	slots, err := s.slots.FindByEvent(ctx, eventID)
	if err != nil {
		return apperrors.Internal("Failed to list slots", err)
	}

	var removedReservations, removedSlots int64
	err = s.events.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if removedReservations, err = s.reservations.DeleteByEvent(txCtx, eventID); err != nil {
			return err
		}
		if removedSlots, err = s.slots.DeleteByEvent(txCtx, eventID); err != nil {
			return err
		}
		return s.events.Delete(txCtx, eventID)
	})
	if err != nil {
		return s.mapError(err, eventID, "Failed to delete event")
	}

	if err := s.queue.Clear(ctx, eventID); err != nil {
		s.cfg.Log.Error("Failed to clear queue of deleted event", "event_id", eventID, "error", err)
	}
	if err := s.ledger.Delete(ctx, stockResources(event, slots)...); err != nil {
		s.cfg.Log.Error("Failed to delete stock counters", "event_id", eventID, "error", err)
	}

	s.cfg.Log.Info("Event deleted",
		"event_id", eventID,
		"slots", removedSlots,
		"reservations", removedReservations,
	)
	return nil
}

func (s *eventService) initializeStock(ctx context.Context, event *model.Event, slots []*model.Slot) error {
	if len(slots) == 0 {
		return s.ledger.Initialize(ctx, stock.EventResource(event.ID), int64(event.MaxParticipants))
	}
	for _, slot := range slots {
		if err := s.ledger.Initialize(ctx, stock.SlotResource(slot.ID), int64(slot.Quantity)); err != nil {
			return fmt.Errorf("slot %s: %w", slot.ID, err)
		}
	}
	return nil
}

func (s *eventService) remaining(ctx context.Context, event *model.Event, slots []*model.Slot) (int64, error) {
	var total int64
	for _, res := range stockResources(event, slots) {
		n, err := s.ledger.Peek(ctx, res)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func stockResources(event *model.Event, slots []*model.Slot) []stock.Resource {
	if len(slots) == 0 {
		return []stock.Resource{stock.EventResource(event.ID)}
	}
	resources := make([]stock.Resource, 0, len(slots))
	for _, slot := range slots {
		resources = append(resources, stock.SlotResource(slot.ID))
	}
	return resources
}

func (s *eventService) findEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Event ID cannot be empty")
	}

	event, err := s.events.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, id, "Failed to retrieve event")
	}
	return event, nil
}

func (s *eventService) findOwnedEvent(ctx context.Context, id, userID string) (*model.Event, error) {
	event, err := s.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !event.IsOwnedBy(userID) {
		return nil, apperrors.Forbidden(eventserrors.ErrForbidden.Error()).WithCause(eventserrors.ErrForbidden)
	}
	return event, nil
}

func (s *eventService) mapError(err error, id, message string) error {
	switch {
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, eventserrors.ErrEventNotFound):
		return apperrors.NotFoundWithID("Event", id).WithCause(err)
	case errors.Is(err, eventserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid event ID format").WithCause(err)
	case errors.Is(err, eventserrors.ErrStatusChanged):
		return apperrors.Conflict("Event status changed concurrently, retry").WithCause(err).Retryable()
	}
	s.cfg.Log.Error(message, "event_id", id, "error", err)
	return apperrors.Internal(message, err)
}

func (s *eventService) settings(req *model.EventSettings) model.EventSettings {
	settings := model.EventSettings{UseQueue: true}
	if req != nil {
		settings = *req
	}
	return settings.WithDefaults(s.cfg.QueueBatchSize, s.cfg.DefaultReservationTimeLimit, s.cfg.DefaultMaxReservationsPerUser)
}

func (s *eventService) sanitize(req *model.EventCreate) {
	req.Title = sanitizer.NormalizeTitle(req.Title)
	req.Description = sanitizer.NormalizeDescription(req.Description)
	for i := range req.Slots {
		req.Slots[i].Name = sanitizer.NormalizeSlotName(req.Slots[i].Name)
	}
}
