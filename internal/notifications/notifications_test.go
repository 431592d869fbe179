package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	httputil "queuegate/pkg/http"
	"queuegate/pkg/kafka"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu        sync.Mutex
	err       error
	published []kafka.Message
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeProducer) PublishBatch(_ context.Context, msgs []kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msgs...)
	return nil
}

func readyNotification(userID string) model.Notification {
	return model.QueueReadyNotification("event-1", userID, 5*time.Minute, time.Unix(1700000000, 0).UTC())
}

func TestHub_DeliversToEverySubscriberOfUser(t *testing.T) {
	hub := NewHub(logger.Discard(), 4)

	a, cancelA := hub.Subscribe("u1")
	defer cancelA()
	b, cancelB := hub.Subscribe("u1")
	defer cancelB()
	other, cancelOther := hub.Subscribe("u2")
	defer cancelOther()

	assert.Equal(t, 2, hub.Subscribers("u1"))
	assert.Equal(t, 2, hub.Deliver("u1", []byte("hello")))

	assert.Equal(t, []byte("hello"), <-a)
	assert.Equal(t, []byte("hello"), <-b)
	select {
	case <-other:
		t.Fatal("u2 received a payload addressed to u1")
	default:
	}
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logger.Discard(), 1)

	ch, cancel := hub.Subscribe("u1")
	defer cancel()

	assert.Equal(t, 1, hub.Deliver("u1", []byte("first")))
	assert.Equal(t, 0, hub.Deliver("u1", []byte("second")))
	assert.EqualValues(t, 1, hub.Dropped())
	assert.Equal(t, []byte("first"), <-ch)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(logger.Discard(), 1)

	ch, cancel := hub.Subscribe("u1")
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers("u1"))
	assert.Equal(t, 0, hub.Deliver("u1", []byte("x")))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(logger.Discard(), 1)

	ch, cancel := hub.Subscribe("u1")
	hub.Close()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := hub.Subscribe("u1")
	_, ok = <-late
	assert.False(t, ok)
}

func TestHubNotifier(t *testing.T) {
	hub := NewHub(logger.Discard(), 2)
	ch, cancel := hub.Subscribe("u1")
	defer cancel()

	n := NewHubNotifier(hub)
	require.NoError(t, n.NotifyBatch(context.Background(), []model.Notification{readyNotification("u1")}))

	var got model.Notification
	require.NoError(t, json.Unmarshal(<-ch, &got))
	assert.Equal(t, model.NotificationQueueReady, got.Type)
	assert.Equal(t, "event-1", got.Data["event_id"])
}

func TestKafkaPublisher_KeysByUser(t *testing.T) {
	producer := &fakeProducer{}
	p := NewKafkaPublisher(producer, "scheduler", logger.Discard())

	require.NoError(t, p.Notify(context.Background(), readyNotification("u1")))
	require.NoError(t, p.NotifyBatch(context.Background(), []model.Notification{
		readyNotification("u2"),
		readyNotification("u3"),
	}))

	require.Len(t, producer.published, 3)
	msg := producer.published[0]
	assert.Equal(t, "u1", msg.Key)
	assert.Equal(t, string(model.NotificationQueueReady), msg.GetMessageType())

	var decoded model.Notification
	require.NoError(t, msg.DecodeValue(&decoded))
	assert.Equal(t, "u1", decoded.UserID)
	assert.Equal(t, "u3", producer.published[2].Key)
}

func TestKafkaPublisher_RejectsNotificationWithoutUser(t *testing.T) {
	producer := &fakeProducer{}
	p := NewKafkaPublisher(producer, "scheduler", logger.Discard())

	err := p.Notify(context.Background(), model.Notification{Type: model.NotificationQueueUpdate})
	require.Error(t, err)
	assert.Empty(t, producer.published)
}

func TestKafkaPublisher_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	producer := &fakeProducer{err: errors.New("broker down")}
	p := NewKafkaPublisher(producer, "scheduler", logger.Discard())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := p.Notify(ctx, readyNotification("u1"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}

	assert.Equal(t, gobreaker.StateOpen, p.State())

	producer.err = nil
	err := p.Notify(ctx, readyNotification("u1"))
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Empty(t, producer.published)
}

func TestConsumerHandle_DeliversToHub(t *testing.T) {
	hub := NewHub(logger.Discard(), 2)
	ch, cancel := hub.Subscribe("u1")
	defer cancel()

	c := &Consumer{hub: hub, log: logger.Discard()}

	msg, err := kafka.NewMessage().WithKey("u1").WithValue(readyNotification("u1")).Build()
	require.NoError(t, err)
	require.NoError(t, c.Handle(context.Background(), msg))

	var got model.Notification
	require.NoError(t, json.Unmarshal(<-ch, &got))
	assert.Equal(t, "u1", got.UserID)
}

func TestConsumerHandle_SwallowsUndecodable(t *testing.T) {
	hub := NewHub(logger.Discard(), 2)
	c := &Consumer{hub: hub, log: logger.Discard()}

	msg := kafka.Message{Key: "u1", Value: []byte("not json")}
	assert.NoError(t, c.Handle(context.Background(), msg))
}

func TestInstanceGroupID_IsUnique(t *testing.T) {
	a := InstanceGroupID("notifications")
	b := InstanceGroupID("notifications")

	assert.True(t, strings.HasPrefix(a, "notifications-"))
	assert.NotEqual(t, a, b)
}

func TestStream_RequiresUser(t *testing.T) {
	router := httprouter.New()
	NewStreamHandler(NewHub(logger.Discard(), 1), time.Second, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStream_WritesNotificationsAsEvents(t *testing.T) {
	hub := NewHub(logger.Discard(), 4)
	router := httprouter.New()
	NewStreamHandler(hub, time.Hour, logger.Discard()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/notifications/stream", nil)
	require.NoError(t, err)
	req.Header.Set(httputil.HeaderUserID, "u1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Subscribers("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	payload, err := encode(readyNotification("u1"))
	require.NoError(t, err)
	hub.Deliver("u1", payload)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: QUEUE_READY\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: "+string(payload)+"\n", line)
}

func TestEventName(t *testing.T) {
	assert.Equal(t, "QUEUE_UPDATE", eventName([]byte(`{"type":"QUEUE_UPDATE"}`)))
	assert.Equal(t, "message", eventName([]byte(`garbage`)))
}
