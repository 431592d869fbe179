package service

import (
	"context"

	"queuegate/internal/reservations/validator"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/kafka"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/google/uuid"
)

const commandSchemaVersion = "1"

// CommandService accepts reservation commands for asynchronous processing by
// the worker.
type CommandService interface {
	Submit(ctx context.Context, cmd *model.ReservationCommand) (string, error)
}

type commandService struct {
	publisher kafka.Publisher
	validator *validator.ReservationValidator
	source    string
	log       *logger.Logger
}

func NewCommandService(publisher kafka.Publisher, validator *validator.ReservationValidator, source string, log *logger.Logger) CommandService {
	return &commandService{
		publisher: publisher,
		validator: validator,
		source:    source,
		log:       log,
	}
}

// Submit publishes cmd keyed by user and returns the correlation id the
// worker logs the outcome under.
func (s *commandService) Submit(ctx context.Context, cmd *model.ReservationCommand) (string, error) {
	if err := s.validator.ValidateCommand(cmd); err != nil {
		return "", apperrors.Validation("Reservation command validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	correlationID := uuid.NewString()
	msg, err := kafka.NewMessage().
		WithKey(cmd.Key()).
		WithValue(cmd).
		WithMessageType(string(cmd.Action)).
		WithSchemaVersion(commandSchemaVersion).
		WithSource(s.source).
		WithCorrelationID(correlationID).
		Build()
	if err != nil {
		return "", apperrors.Internal("Failed to encode reservation command", err)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.Error("Failed to publish reservation command",
			"action", cmd.Action,
			"user_id", cmd.UserID,
			"error", err,
		)
		return "", apperrors.Unavailable("Reservation queue").WithCause(err).Retryable()
	}

	s.log.Info("Reservation command accepted",
		"action", cmd.Action,
		"user_id", cmd.UserID,
		"event_id", cmd.EventID,
		"correlation_id", correlationID,
	)
	return correlationID, nil
}
