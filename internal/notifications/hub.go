package notifications

import (
	"sync"
	"sync/atomic"

	"queuegate/pkg/logger"
)

const DefaultSubscriberBuffer = 16

type subscription struct {
	ch chan []byte
}

// Hub fans payloads out to the local subscribers of each user. A subscriber
// whose buffer is full misses the payload instead of blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Int64
	log     *logger.Logger
}

func NewHub(log *logger.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
		log:    log.WithComponent("notification_hub"),
	}
}

// Subscribe registers a stream for userID. The returned cancel func removes
// it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan []byte, func()) {
	sub := &subscription{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(userID, sub) })
	}
}

func (h *Hub) remove(userID string, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subs, userID)
	}
	close(sub.ch)
}

// Deliver hands payload to every subscriber of userID and returns how many
// received it.
func (h *Hub) Deliver(userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			h.dropped.Add(1)
			h.log.Debug("Dropped notification for slow subscriber", "user_id", userID)
		}
	}
	return delivered
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Dropped is the number of payloads discarded because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close ends every stream. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for userID, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subs, userID)
	}
}
