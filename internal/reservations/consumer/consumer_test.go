package consumer

import (
	"context"
	"errors"
	"testing"

	"queuegate/internal/reservations/validator"
	"queuegate/internal/stock"
	apperrors "queuegate/pkg/errors"
	"queuegate/pkg/kafka"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eventID       = "507f1f77bcf86cd799439011"
	reservationID = "507f1f77bcf86cd799439012"
)

type mockReservationService struct {
	reserveErr error
	cancelErr  error
	calls      []string
}

func (m *mockReservationService) Reserve(_ context.Context, eventID, userID, slotID string) (*model.Reservation, error) {
	m.calls = append(m.calls, "reserve:"+userID)
	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	return &model.Reservation{ID: reservationID, EventID: eventID, UserID: userID}, nil
}

func (m *mockReservationService) Cancel(_ context.Context, id, userID string) error {
	m.calls = append(m.calls, "cancel:"+id)
	return m.cancelErr
}

func (m *mockReservationService) Expire(_ context.Context, id string) (*model.Reservation, error) {
	m.calls = append(m.calls, "expire:"+id)
	return &model.Reservation{ID: id}, nil
}

func (m *mockReservationService) Get(context.Context, string, string) (*model.Reservation, error) {
	return nil, nil
}

func (m *mockReservationService) ListMine(context.Context, string, int, int64) ([]*model.Reservation, int64, error) {
	return nil, 0, nil
}

func (m *mockReservationService) ListParticipants(context.Context, string, string, int, int64) ([]*model.Reservation, int64, error) {
	return nil, 0, nil
}

func newTestHandler(svc *mockReservationService) *CommandConsumer {
	log := logger.Discard()
	return newHandler(svc, validator.NewReservationValidator(log), log)
}

func commandMessage(t *testing.T, cmd model.ReservationCommand) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().WithKey(cmd.Key()).WithValue(cmd).WithMessageType(string(cmd.Action)).Build()
	require.NoError(t, err)
	return msg
}

func TestHandle_DispatchesActions(t *testing.T) {
	svc := &mockReservationService{}
	c := newTestHandler(svc)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, commandMessage(t, model.ReservationCommand{
		Action: model.ReservationActionCreate, EventID: eventID, UserID: "u1",
	})))
	require.NoError(t, c.Handle(ctx, commandMessage(t, model.ReservationCommand{
		Action: model.ReservationActionCancel, ReservationID: reservationID, UserID: "u1",
	})))
	require.NoError(t, c.Handle(ctx, commandMessage(t, model.ReservationCommand{
		Action: model.ReservationActionExpire, ReservationID: reservationID,
	})))

	assert.Equal(t, []string{"reserve:u1", "cancel:" + reservationID, "expire:" + reservationID}, svc.calls)
}

func TestHandle_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want kafka.ErrorType
	}{
		{
			name: "sold out is final",
			err:  apperrors.PreconditionFailed(apperrors.ReasonSoldOut, "Sold out").WithCause(stock.ErrSoldOut),
			want: kafka.ErrorTypeBusiness,
		},
		{
			name: "already exists is final",
			err:  apperrors.Conflict("exists"),
			want: kafka.ErrorTypeBusiness,
		},
		{
			name: "lock contention is retried",
			err:  apperrors.Conflict("busy").Retryable(),
			want: kafka.ErrorTypeTransient,
		},
		{
			name: "internal is retried",
			err:  apperrors.Internal("Failed to create reservation", errors.New("mongo down")),
			want: kafka.ErrorTypeTransient,
		},
		{
			name: "plain error is retried",
			err:  errors.New("i/o timeout"),
			want: kafka.ErrorTypeTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestHandler(&mockReservationService{reserveErr: tt.err})

			err := c.Handle(context.Background(), commandMessage(t, model.ReservationCommand{
				Action: model.ReservationActionCreate, EventID: eventID, UserID: "u1",
			}))

			require.Error(t, err)
			assert.Equal(t, tt.want, kafka.ClassifyError(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestHandle_BusinessErrorsAreNotRetried(t *testing.T) {
	c := newTestHandler(&mockReservationService{
		reserveErr: apperrors.PreconditionFailed(apperrors.ReasonSoldOut, "Sold out"),
	})

	err := c.Handle(context.Background(), commandMessage(t, model.ReservationCommand{
		Action: model.ReservationActionCreate, EventID: eventID, UserID: "u1",
	}))

	assert.False(t, kafka.ShouldRetry(err, 0, 3))
}

func TestHandle_RejectsMalformedMessages(t *testing.T) {
	svc := &mockReservationService{}
	c := newTestHandler(svc)

	err := c.Handle(context.Background(), kafka.Message{Value: []byte("{")})
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	err = c.Handle(context.Background(), commandMessage(t, model.ReservationCommand{
		Action: model.ReservationActionCancel, UserID: "u1",
	}))
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	err = c.Handle(context.Background(), commandMessage(t, model.ReservationCommand{
		Action: "refund", UserID: "u1",
	}))
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	assert.Empty(t, svc.calls)
}
