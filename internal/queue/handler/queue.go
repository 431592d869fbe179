package handler

import (
	"net/http"

	"queuegate/internal/queue/service"
	httputil "queuegate/pkg/http"
	"queuegate/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

type QueueHandler struct {
	service service.QueueService
	log     *logger.Logger
}

type LeaveResponse struct {
	Removed bool `json:"removed"`
}

func NewQueueHandler(service service.QueueService, log *logger.Logger) *QueueHandler {
	return &QueueHandler{
		service: service,
		log:     log,
	}
}

func (h *QueueHandler) Enter(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "Enter", err)
		return
	}

	pos, err := h.service.EnterQueue(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		h.writeError(w, "Enter", err)
		return
	}

	if err := httputil.WriteSuccess(w, pos); err != nil {
		h.log.Error("failed to write success response", "handler", "Enter", "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) Position(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "Position", err)
		return
	}

	pos, err := h.service.GetPosition(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		h.writeError(w, "Position", err)
		return
	}

	if err := httputil.WriteSuccess(w, pos); err != nil {
		h.log.Error("failed to write success response", "handler", "Position", "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) Leave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "Leave", err)
		return
	}

	removed, err := h.service.LeaveQueue(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		h.writeError(w, "Leave", err)
		return
	}

	if err := httputil.WriteSuccess(w, LeaveResponse{Removed: removed}); err != nil {
		h.log.Error("failed to write success response", "handler", "Leave", "operation", "WriteSuccess", "error", err)
	}
}

func (h *QueueHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *QueueHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/events/:id/queue", h.Enter)
	router.GET("/api/v1/events/:id/queue", h.Position)
	router.DELETE("/api/v1/events/:id/queue", h.Leave)
}
