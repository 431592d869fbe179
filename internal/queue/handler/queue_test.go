package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "queuegate/pkg/errors"
	httputil "queuegate/pkg/http"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockQueueService struct {
	enterFunc func(ctx context.Context, eventID, userID string) (*model.QueuePosition, error)
	leaveFunc func(ctx context.Context, eventID, userID string) (bool, error)
}

func (m *mockQueueService) EnterQueue(ctx context.Context, eventID, userID string) (*model.QueuePosition, error) {
	return m.enterFunc(ctx, eventID, userID)
}

func (m *mockQueueService) GetPosition(ctx context.Context, eventID, userID string) (*model.QueuePosition, error) {
	return &model.QueuePosition{EventID: eventID, UserID: userID, Status: model.QueueStatusNotInQueue, Position: -1}, nil
}

func (m *mockQueueService) LeaveQueue(ctx context.Context, eventID, userID string) (bool, error) {
	return m.leaveFunc(ctx, eventID, userID)
}

func serve(t *testing.T, svc *mockQueueService, method, path, userID string) *httptest.ResponseRecorder {
	t.Helper()
	router := httprouter.New()
	NewQueueHandler(svc, logger.Discard()).RegisterRoutes(router)

	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set(httputil.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEnter(t *testing.T) {
	svc := &mockQueueService{
		enterFunc: func(_ context.Context, eventID, userID string) (*model.QueuePosition, error) {
			return &model.QueuePosition{EventID: eventID, UserID: userID, Position: 3, TotalInQueue: 3, Status: model.QueueStatusWaiting}, nil
		},
	}

	w := serve(t, svc, http.MethodPost, "/api/v1/events/ev1/queue", "user-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data model.QueuePosition `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ev1", resp.Data.EventID)
	assert.Equal(t, "user-1", resp.Data.UserID)
	assert.EqualValues(t, 3, resp.Data.Position)
}

func TestEnter_NotOpen(t *testing.T) {
	svc := &mockQueueService{
		enterFunc: func(context.Context, string, string) (*model.QueuePosition, error) {
			return nil, apperrors.PreconditionFailed(apperrors.ReasonEventNotOpen, "Event is not open")
		},
	}

	w := serve(t, svc, http.MethodPost, "/api/v1/events/ev1/queue", "user-1")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.ReasonEventNotOpen)
}

func TestPosition_RequiresUser(t *testing.T) {
	w := serve(t, &mockQueueService{}, http.MethodGet, "/api/v1/events/ev1/queue", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLeave(t *testing.T) {
	svc := &mockQueueService{
		leaveFunc: func(context.Context, string, string) (bool, error) { return true, nil },
	}

	w := serve(t, svc, http.MethodDelete, "/api/v1/events/ev1/queue", "user-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"removed":true}}`, w.Body.String())
}
