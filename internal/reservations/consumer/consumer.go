// Package consumer executes reservation commands taken from Kafka. Outcomes
// that no retry can change are returned as business errors so the consumer
// dead-letters them at once; everything else is transient and goes through
// the consumer's retry policy.
package consumer

import (
	"context"
	"fmt"
	"net/http"

	"queuegate/internal/reservations/service"
	"queuegate/internal/reservations/validator"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/kafka"
	kafkaconfig "queuegate/pkg/kafka/config"
	kafkamiddleware "queuegate/pkg/kafka/middleware"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"
)

type CommandConsumer struct {
	consumer  *kafka.Consumer
	service   service.ReservationService
	validator *validator.ReservationValidator
	metrics   *kafkamiddleware.Metrics
	log       *logger.Logger
}

func NewCommandConsumer(cfg *kafkaconfig.Config, svc service.ReservationService, validator *validator.ReservationValidator, log *logger.Logger) (*CommandConsumer, error) {
	c := newHandler(svc, validator, log)

	consumer, err := kafka.NewConsumer(cfg, log, cfg.TopicReservationCommands, cfg.ReservationCommandsGroup, cfg.TopicDLQ, c.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to create reservation command consumer: %w", err)
	}
	consumer.Use(c.metrics.ConsumerMiddleware())
	if cfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(log))
	}
	c.consumer = consumer

	return c, nil
}

func newHandler(svc service.ReservationService, validator *validator.ReservationValidator, log *logger.Logger) *CommandConsumer {
	return &CommandConsumer{
		service:   svc,
		validator: validator,
		metrics:   kafkamiddleware.NewMetrics(),
		log:       log.WithComponent("reservation_consumer"),
	}
}

func (c *CommandConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var cmd model.ReservationCommand
	if err := msg.DecodeValue(&cmd); err != nil {
		return kafka.NewPermanentError("deserialization failed", err)
	}
	if err := c.validator.ValidateCommand(&cmd); err != nil {
		return kafka.NewPermanentError("invalid message", err)
	}

	log := c.log.With(
		"action", cmd.Action,
		"user_id", cmd.UserID,
		"correlation_id", msg.GetCorrelationID(),
	)

	var err error
	switch cmd.Action {
	case model.ReservationActionCreate:
		var reservation *model.Reservation
		reservation, err = c.service.Reserve(ctx, cmd.EventID, cmd.UserID, cmd.SlotID)
		if err == nil {
			log.Info("Reservation command completed", "reservation_id", reservation.ID)
		}
	case model.ReservationActionCancel:
		err = c.service.Cancel(ctx, cmd.ReservationID, cmd.UserID)
		if err == nil {
			log.Info("Reservation command completed", "reservation_id", cmd.ReservationID)
		}
	case model.ReservationActionExpire:
		_, err = c.service.Expire(ctx, cmd.ReservationID)
		if err == nil {
			log.Info("Reservation command completed", "reservation_id", cmd.ReservationID)
		}
	default:
		return kafka.NewPermanentError("invalid message", fmt.Errorf("unknown action %q", cmd.Action))
	}

	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps service failures onto the consumer's retry policy. Client
// errors are final unless the service marked them retryable.
func classify(err error) error {
	if !apperrors.IsAppError(err) {
		return kafka.NewTransientError("reservation command failed", err)
	}

	appErr := apperrors.AsAppError(err)
	status := appErr.StatusCode()
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError && !appErr.IsRetryable() {
		return kafka.NewBusinessError(appErr.Message, err).WithDetail("code", appErr.Code)
	}
	return kafka.NewTransientError(appErr.Message, err)
}

func (c *CommandConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Snapshot reports processed and failed command counts.
func (c *CommandConsumer) Snapshot() kafkamiddleware.Snapshot {
	return c.metrics.Snapshot()
}

func (c *CommandConsumer) Close() error {
	c.log.Info("Reservation command consumer closing", c.metrics.Snapshot().LogArgs()...)
	return c.consumer.Close()
}
