// Package reservationstest provides an in-memory reservation repository that
// enforces the same one-active-reservation rule as the Mongo index.
package reservationstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	reservationserrors "queuegate/internal/reservations/errors"
	"queuegate/internal/reservations/repository"
	mongotx "queuegate/pkg/db/mongo"
	"queuegate/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repository.ReservationRepository = (*Store)(nil)

type Store struct {
	mu           sync.Mutex
	reservations map[string]*model.Reservation

	// CreateErr, when set, is returned by Create before anything is stored.
	CreateErr error
}

func NewStore() *Store {
	return &Store{reservations: make(map[string]*model.Reservation)}
}

func (s *Store) Create(_ context.Context, reservation *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return s.CreateErr
	}

	reservation.Active = reservation.Status.IsActive()
	if reservation.Active && s.activeLocked(reservation.EventID, reservation.UserID) != nil {
		return fmt.Errorf("%w: event %s user %s", reservationserrors.ErrReservationAlreadyExists, reservation.EventID, reservation.UserID)
	}

	reservation.ID = primitive.NewObjectID().Hex()
	cp := *reservation
	s.reservations[reservation.ID] = &cp
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	if _, err := mongotx.ObjectID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrInvalidID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reservation, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", reservationserrors.ErrReservationNotFound, id)
	}
	cp := *reservation
	return &cp, nil
}

func (s *Store) FindActive(_ context.Context, eventID, userID string) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reservation := s.activeLocked(eventID, userID)
	if reservation == nil {
		return nil, fmt.Errorf("%w: event %s user %s", reservationserrors.ErrReservationNotFound, eventID, userID)
	}
	cp := *reservation
	return &cp, nil
}

func (s *Store) ListByUser(_ context.Context, userID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	return s.list(func(r *model.Reservation) bool { return r.UserID == userID }, limit, offset)
}

func (s *Store) ListActiveByEvent(_ context.Context, eventID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	return s.list(func(r *model.Reservation) bool { return r.EventID == eventID && r.Active }, limit, offset)
}

func (s *Store) CountActiveByEvent(_ context.Context, eventID string) (int64, error) {
	_, total, err := s.list(func(r *model.Reservation) bool { return r.EventID == eventID && r.Active }, 0, 0)
	return total, err
}

func (s *Store) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.reservations {
		if r.EventID == eventID {
			delete(s.reservations, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateStatus(_ context.Context, reservation *model.Reservation, from model.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.reservations[reservation.ID]
	if !ok {
		return fmt.Errorf("%w: %s", reservationserrors.ErrReservationNotFound, reservation.ID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: %s expected %s", reservationserrors.ErrStatusChanged, reservation.ID, from)
	}

	cp := *reservation
	cp.Active = cp.Status.IsActive()
	s.reservations[reservation.ID] = &cp
	return nil
}

// ExecuteTransaction runs fn directly; the store has no rollback.
func (s *Store) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// Count returns how many stored reservations have status.
func (s *Store) Count(status model.ReservationStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.reservations {
		if r.Status == status {
			n++
		}
	}
	return n
}

func (s *Store) activeLocked(eventID, userID string) *model.Reservation {
	for _, r := range s.reservations {
		if r.EventID == eventID && r.UserID == userID && r.Active {
			return r
		}
	}
	return nil
}

func (s *Store) list(match func(*model.Reservation) bool, limit int, offset int64) ([]*model.Reservation, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Reservation
	for _, r := range s.reservations {
		if match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	total := int64(len(out))
	if offset >= total {
		return []*model.Reservation{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}
