package notifications

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	httputil "queuegate/pkg/http"
	"queuegate/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const DefaultKeepAlive = 25 * time.Second

type StreamHandler struct {
	hub       *Hub
	keepAlive time.Duration
	log       *logger.Logger
}

func NewStreamHandler(hub *Hub, keepAlive time.Duration, log *logger.Logger) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &StreamHandler{
		hub:       hub,
		keepAlive: keepAlive,
		log:       log,
	}
}

// Stream holds the connection open and writes each of the caller's
// notifications as one event whose name is the notification type.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Stream", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	sse, err := httputil.NewSSEWriter(w)
	if err != nil {
		h.log.Error("Streaming not supported", "error", err)
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Stream", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn("Failed to clear write deadline", "error", err)
	}

	ch, cancel := h.hub.Subscribe(userID)
	defer cancel()

	h.log.Debug("Notification stream opened", "user_id", userID)
	defer h.log.Debug("Notification stream closed", "user_id", userID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.Event(eventName(payload), payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.Comment("keep-alive"); err != nil {
				return
			}
		}
	}
}

func eventName(payload []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}

func (h *StreamHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/notifications/stream", h.Stream)
}
