package service

import (
	"context"
	"errors"

	eventserrors "queuegate/internal/events/errors"
	"queuegate/internal/events/repository"
	"queuegate/internal/queue"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/model"
)

// notQueuedPosition is reported for users that are neither waiting nor ready.
const notQueuedPosition = -1

type QueueService interface {
	EnterQueue(ctx context.Context, eventID, userID string) (*model.QueuePosition, error)
	GetPosition(ctx context.Context, eventID, userID string) (*model.QueuePosition, error)
	LeaveQueue(ctx context.Context, eventID, userID string) (bool, error)
}

type queueService struct {
	events repository.EventRepository
	queue  queue.AdmissionQueue
	clock  clock.Clock
	cfg    *config.Config
}

func NewQueueService(events repository.EventRepository, q queue.AdmissionQueue, clk clock.Clock, cfg *config.Config) QueueService {
	return &queueService{
		events: events,
		queue:  q,
		clock:  clk,
		cfg:    cfg,
	}
}

// EnterQueue is idempotent: a user already waiting keeps their rank and a
// ready user stays ready. Events that do not use a queue admit everyone
// directly and report READY.
func (s *queueService) EnterQueue(ctx context.Context, eventID, userID string) (*model.QueuePosition, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user ID is required")
	}

	event, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !event.CanReserve(now) {
		return nil, apperrors.PreconditionFailed(apperrors.ReasonEventNotOpen, "Event is not open").
			WithCause(eventserrors.ErrEventNotOpen)
	}

	if !event.Settings.UseQueue {
		return &model.QueuePosition{
			EventID: eventID,
			UserID:  userID,
			Status:  model.QueueStatusReady,
		}, nil
	}

	result, err := s.queue.Enter(ctx, eventID, userID, now)
	if err != nil {
		s.cfg.Log.Error("Failed to enter queue",
			"event_id", eventID,
			"user_id", userID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to enter queue", err)
	}

	pos, err := s.position(ctx, event, userID, result.Status, result.Position)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Debug("User entered queue",
		"event_id", eventID,
		"user_id", userID,
		"status", pos.Status,
		"position", pos.Position,
	)
	return pos, nil
}

func (s *queueService) GetPosition(ctx context.Context, eventID, userID string) (*model.QueuePosition, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("user ID is required")
	}

	event, err := s.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	ready, err := s.queue.IsReady(ctx, eventID, userID)
	if err != nil {
		return nil, s.internal("Failed to read queue position", eventID, userID, err)
	}
	if ready {
		return s.position(ctx, event, userID, model.QueueStatusReady, 0)
	}

	rank, ok, err := s.queue.Position(ctx, eventID, userID)
	if err != nil {
		return nil, s.internal("Failed to read queue position", eventID, userID, err)
	}
	if !ok {
		return s.position(ctx, event, userID, model.QueueStatusNotInQueue, notQueuedPosition)
	}
	return s.position(ctx, event, userID, model.QueueStatusWaiting, rank)
}

func (s *queueService) LeaveQueue(ctx context.Context, eventID, userID string) (bool, error) {
	if userID == "" {
		return false, apperrors.Unauthorized("user ID is required")
	}

	removed, err := s.queue.Leave(ctx, eventID, userID)
	if err != nil {
		return false, s.internal("Failed to leave queue", eventID, userID, err)
	}

	if removed {
		s.cfg.Log.Debug("User left queue", "event_id", eventID, "user_id", userID)
	}
	return removed, nil
}

func (s *queueService) position(ctx context.Context, event *model.Event, userID string, status model.QueueStatus, rank int64) (*model.QueuePosition, error) {
	total, err := s.queue.Size(ctx, event.ID)
	if err != nil {
		return nil, s.internal("Failed to read queue size", event.ID, userID, err)
	}

	pos := &model.QueuePosition{
		EventID:      event.ID,
		UserID:       userID,
		Position:     rank,
		TotalInQueue: total,
		Status:       status,
	}
	if status == model.QueueStatusWaiting {
		pos.EstimatedWaitSeconds = model.EstimateWaitSeconds(
			rank,
			event.Settings.BatchSize(s.cfg.QueueBatchSize),
			s.cfg.QueueCheckIntervalSeconds(),
		)
	}
	return pos, nil
}

func (s *queueService) findEvent(ctx context.Context, eventID string) (*model.Event, error) {
	if eventID == "" {
		return nil, apperrors.InvalidInput("Event ID cannot be empty")
	}

	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		switch {
		case errors.Is(err, eventserrors.ErrEventNotFound):
			return nil, apperrors.NotFoundWithID("Event", eventID).WithCause(err)
		case errors.Is(err, eventserrors.ErrInvalidID):
			return nil, apperrors.InvalidInput("Invalid event ID format").WithCause(err)
		}
		s.cfg.Log.Error("Failed to load event", "event_id", eventID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve event", err)
	}
	return event, nil
}

func (s *queueService) internal(message, eventID, userID string, err error) error {
	s.cfg.Log.Error(message,
		"event_id", eventID,
		"user_id", userID,
		"error", err,
	)
	return apperrors.Internal(message, err)
}
