package notifications

import (
	"context"
	"fmt"

	"queuegate/pkg/kafka"
	kafkaconfig "queuegate/pkg/kafka/config"
	kafkamiddleware "queuegate/pkg/kafka/middleware"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/google/uuid"
)

// Consumer reads the notifications topic and delivers to the local hub.
// Each instance joins its own consumer group so every instance sees every
// notification.
type Consumer struct {
	consumer *kafka.Consumer
	hub      *Hub
	log      *logger.Logger
}

// InstanceGroupID derives a consumer group unique to this process.
func InstanceGroupID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

func NewConsumer(cfg *kafkaconfig.Config, hub *Hub, log *logger.Logger) (*Consumer, error) {
	c := &Consumer{
		hub: hub,
		log: log.WithComponent("notification_consumer"),
	}

	groupID := InstanceGroupID(cfg.NotificationsGroupPrefix)
	consumer, err := kafka.NewConsumer(cfg, log, cfg.TopicNotifications, groupID, "", c.Handle)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification consumer: %w", err)
	}
	if cfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(log))
	}
	c.consumer = consumer

	return c, nil
}

// Handle delivers one message. Failures are logged and swallowed: a
// notification that cannot be delivered now is not worth redelivering.
func (c *Consumer) Handle(_ context.Context, msg kafka.Message) error {
	var n model.Notification
	if err := msg.DecodeValue(&n); err != nil {
		c.log.Warn("Dropping undecodable notification",
			"key", msg.Key,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	userID := n.UserID
	if userID == "" {
		userID = msg.Key
	}

	delivered := c.hub.Deliver(userID, msg.Value)
	c.log.Debug("Notification delivered",
		"user_id", userID,
		"type", n.Type,
		"subscribers", delivered,
	)
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}
