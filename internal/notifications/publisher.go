package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"queuegate/pkg/kafka"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/sony/gobreaker"
)

const schemaVersion = "1"

// ErrBreakerOpen is returned while the broker is considered unavailable.
var ErrBreakerOpen = errors.New("notification publishing suspended")

type batchPublisher interface {
	kafka.Publisher
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// KafkaPublisher publishes notifications keyed by user id so one user's
// notifications stay on one partition, in order. A circuit breaker stops
// callers from waiting on a broker that keeps failing.
type KafkaPublisher struct {
	producer batchPublisher
	breaker  *gobreaker.CircuitBreaker
	source   string
	log      *logger.Logger
}

func NewKafkaPublisher(producer batchPublisher, source string, log *logger.Logger) *KafkaPublisher {
	log = log.WithComponent("notification_publisher")

	settings := gobreaker.Settings{
		Name:        "NotificationPublisher",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &KafkaPublisher{
		producer: producer,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		source:   source,
		log:      log,
	}
}

func (p *KafkaPublisher) Notify(ctx context.Context, n model.Notification) error {
	msg, err := p.message(n)
	if err != nil {
		return err
	}

	return p.execute(func() error {
		return p.producer.Publish(ctx, msg)
	})
}

func (p *KafkaPublisher) NotifyBatch(ctx context.Context, ns []model.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(ns))
	for _, n := range ns {
		msg, err := p.message(n)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	return p.execute(func() error {
		return p.producer.PublishBatch(ctx, messages)
	})
}

// State reports the breaker state, for readiness checks.
func (p *KafkaPublisher) State() gobreaker.State {
	return p.breaker.State()
}

func (p *KafkaPublisher) execute(fn func() error) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	return err
}

func (p *KafkaPublisher) message(n model.Notification) (kafka.Message, error) {
	if n.UserID == "" {
		return kafka.Message{}, fmt.Errorf("notification %s has no user", n.Type)
	}

	return kafka.NewMessage().
		WithKey(n.UserID).
		WithValue(n).
		WithMessageType(string(n.Type)).
		WithSchemaVersion(schemaVersion).
		WithSource(p.source).
		Build()
}

func encode(n model.Notification) ([]byte, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return payload, nil
}
