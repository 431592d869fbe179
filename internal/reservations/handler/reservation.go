package handler

import (
	"encoding/json"
	"net/http"

	"queuegate/internal/reservations/service"
	apperrors "queuegate/pkg/errors"
	httputil "queuegate/pkg/http"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type AcceptedResponse struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

type ReservationHandler struct {
	service  service.ReservationService
	commands service.CommandService
	log      *logger.Logger
}

func NewReservationHandler(service service.ReservationService, commands service.CommandService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service:  service,
		commands: commands,
		log:      log,
	}
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.ReservationCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	reservation, err := h.service.Reserve(r.Context(), req.EventID, userID, req.SlotID)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, reservation); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *ReservationHandler) CreateAsync(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "CreateAsync", err)
		return
	}

	var req model.ReservationCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "CreateAsync", apperrors.InvalidInput("Invalid request body"))
		return
	}

	correlationID, err := h.commands.Submit(r.Context(), &model.ReservationCommand{
		Action:  model.ReservationActionCreate,
		EventID: req.EventID,
		UserID:  userID,
		SlotID:  req.SlotID,
	})
	if err != nil {
		h.writeError(w, "CreateAsync", err)
		return
	}

	resp := AcceptedResponse{CorrelationID: correlationID, Status: "ACCEPTED"}
	if err := httputil.WriteAccepted(w, resp); err != nil {
		h.log.Error("failed to write accepted response", "handler", "CreateAsync", "operation", "WriteAccepted", "error", err)
	}
}

func (h *ReservationHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	reservation, err := h.service.Get(r.Context(), ps.ByName("id"), userID)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, reservation); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) GetMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "GetMine", err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetMine", err)
		return
	}

	reservations, total, err := h.service.ListMine(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, "GetMine", err)
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetMine", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	if err := h.service.Cancel(r.Context(), ps.ByName("id"), userID); err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) GetParticipants(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID, err := httputil.UserID(r)
	if err != nil {
		h.writeError(w, "GetParticipants", err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetParticipants", err)
		return
	}

	reservations, total, err := h.service.ListParticipants(r.Context(), ps.ByName("id"), userID, limit, offset)
	if err != nil {
		h.writeError(w, "GetParticipants", err)
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetParticipants", "operation", "WritePaginated", "error", err)
	}
}

func (h *ReservationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations", h.Create)
	router.GET("/api/v1/reservations", h.GetMine)
	router.POST("/api/v1/reservations/async", h.CreateAsync)
	router.GET("/api/v1/reservations/:id", h.GetByID)
	router.DELETE("/api/v1/reservations/:id", h.Cancel)
	router.GET("/api/v1/events/:id/participants", h.GetParticipants)
}
