package kafkamiddleware

import (
	"context"
	"errors"
	"testing"

	"queuegate/pkg/kafka"
	"queuegate/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Consumer(t *testing.T) {
	m := NewMetrics()
	mw := m.ConsumerMiddleware()

	ok := func(context.Context, kafka.Message) error { return nil }
	fail := func(context.Context, kafka.Message) error { return errors.New("boom") }

	assert.NoError(t, mw(context.Background(), kafka.Message{}, ok))
	assert.NoError(t, mw(context.Background(), kafka.Message{}, ok))
	assert.Error(t, mw(context.Background(), kafka.Message{}, fail))

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.Consumed)
	assert.Equal(t, int64(1), s.ConsumeFailed)
	assert.Zero(t, s.Published)
}

func TestMetrics_Producer(t *testing.T) {
	m := NewMetrics()
	mw := m.ProducerMiddleware()

	err := mw(context.Background(), kafka.Message{}, func(context.Context, kafka.Message) error { return nil })
	assert.NoError(t, err)

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Published)
	assert.Len(t, s.LogArgs(), 12)
}

func TestLoggingMiddleware_PassesErrorThrough(t *testing.T) {
	log := logger.Discard()
	want := errors.New("handler failed")

	consumer := LoggingConsumerMiddleware(log)
	err := consumer(context.Background(), kafka.Message{Key: "u1"}, func(context.Context, kafka.Message) error { return want })
	assert.ErrorIs(t, err, want)

	producer := LoggingProducerMiddleware(log)
	err = producer(context.Background(), kafka.Message{Key: "u1"}, func(context.Context, kafka.Message) error { return nil })
	assert.NoError(t, err)
}
