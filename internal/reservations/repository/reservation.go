package repository

import (
	"context"
	"errors"
	"fmt"

	reservationserrors "queuegate/internal/reservations/errors"
	"queuegate/pkg/config"
	mongotx "queuegate/pkg/db/mongo"
	"queuegate/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ReservationsCollectionName = "Reservations"
)

type ReservationRepository interface {
	// Create inserts the reservation. The unique partial index on active
	// reservations turns a second active row for (event, user) into
	// ErrReservationAlreadyExists.
	Create(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindActive(ctx context.Context, eventID, userID string) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	ListActiveByEvent(ctx context.Context, eventID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	CountActiveByEvent(ctx context.Context, eventID string) (int64, error)
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
	// UpdateStatus persists a transition already applied to reservation. It
	// only matches while the stored status is still from.
	UpdateStatus(ctx context.Context, reservation *model.Reservation, from model.ReservationStatus) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	return &mongoReservationRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(ReservationsCollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	reservation.CreatedAt = mongotx.NowMillis(reservation.CreatedAt)
	reservation.Active = reservation.Status.IsActive()

	result, err := r.collection.InsertOne(ctx, reservation)
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: event %s user %s", reservationserrors.ErrReservationAlreadyExists, reservation.EventID, reservation.UserID)
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		reservation.ID = oid.Hex()
	}
	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := mongotx.ObjectID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	var reservation model.Reservation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", reservationserrors.ErrReservationNotFound, id)
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &reservation, nil
}

// FindActive returns the user's PENDING or CONFIRMED reservation for the
// event, or ErrReservationNotFound.
func (r *mongoReservationRepository) FindActive(ctx context.Context, eventID, userID string) (*model.Reservation, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"event_id": eventID, "user_id": userID, "active": true}

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, filter).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: event %s user %s", reservationserrors.ErrReservationNotFound, eventID, userID)
		}
		return nil, fmt.Errorf("failed to find active reservation: %w", err)
	}
	return &reservation, nil
}

func (r *mongoReservationRepository) ListByUser(ctx context.Context, userID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	return r.list(ctx, bson.M{"user_id": userID}, limit, offset)
}

func (r *mongoReservationRepository) ListActiveByEvent(ctx context.Context, eventID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	return r.list(ctx, bson.M{"event_id": eventID, "active": true}, limit, offset)
}

func (r *mongoReservationRepository) list(ctx context.Context, filter bson.M, limit int, offset int64) ([]*model.Reservation, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, 0, fmt.Errorf("failed to decode reservations: %w", err)
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return reservations, total, nil
}

func (r *mongoReservationRepository) CountActiveByEvent(ctx context.Context, eventID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"event_id": eventID, "active": true})
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return count, nil
}

func (r *mongoReservationRepository) DeleteByEvent(ctx context.Context, eventID string) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteMany(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete reservations: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *mongoReservationRepository) UpdateStatus(ctx context.Context, reservation *model.Reservation, from model.ReservationStatus) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := mongotx.ObjectID(reservation.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, reservation.ID)
	}

	set := bson.M{
		"status": reservation.Status,
		"active": reservation.Status.IsActive(),
	}
	if reservation.ConfirmedAt != nil {
		set["confirmed_at"] = mongotx.NowMillis(*reservation.ConfirmedAt)
	}
	if reservation.CancelledAt != nil {
		set["cancelled_at"] = mongotx.NowMillis(*reservation.CancelledAt)
	}
	if reservation.ExpiredAt != nil {
		set["expired_at"] = mongotx.NowMillis(*reservation.ExpiredAt)
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID, "status": from}, bson.M{"$set": set})
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: event %s user %s", reservationserrors.ErrReservationAlreadyExists, reservation.EventID, reservation.UserID)
		}
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": objectID})
		if err != nil {
			return fmt.Errorf("failed to check reservation existence: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", reservationserrors.ErrReservationNotFound, reservation.ID)
		}
		return fmt.Errorf("%w: %s expected %s", reservationserrors.ErrStatusChanged, reservation.ID, from)
	}
	return nil
}

func (r *mongoReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
