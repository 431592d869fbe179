// Package eventstest provides in-memory event and slot repositories for
// tests of the packages that read events.
package eventstest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	eventserrors "queuegate/internal/events/errors"
	"queuegate/internal/events/repository"
	mongotx "queuegate/pkg/db/mongo"
	"queuegate/pkg/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store holds events and slots and implements both repositories.
type Store struct {
	mu     sync.Mutex
	events map[string]*model.Event
	slots  map[string]*model.Slot

	// ListErr, when set, is returned by ListByStatus.
	ListErr error
}

var (
	_ repository.EventRepository = (*Store)(nil)
	_ repository.SlotRepository  = (*SlotStore)(nil)
)

func NewStore() *Store {
	return &Store{
		events: make(map[string]*model.Event),
		slots:  make(map[string]*model.Slot),
	}
}

// Put stores a copy of event, assigning an ID when it has none.
func (s *Store) Put(event *model.Event) *model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = primitive.NewObjectID().Hex()
	}
	cp := *event
	s.events[event.ID] = &cp
	return event
}

// Slots returns the slot repository view of the store.
func (s *Store) Slots() *SlotStore {
	return &SlotStore{s: s}
}

func (s *Store) Create(_ context.Context, event *model.Event) error {
	now := mongotx.NowMillis(time.Now())
	event.CreatedAt = now
	event.UpdatedAt = now
	s.Put(event)
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*model.Event, error) {
	if _, err := mongotx.ObjectID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", eventserrors.ErrInvalidID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", eventserrors.ErrEventNotFound, id)
	}
	cp := *event
	return &cp, nil
}

func (s *Store) ListByStatus(_ context.Context, statuses []model.EventStatus, limit int, offset int64) ([]*model.Event, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}

	matched := s.matching(statuses)
	if offset >= int64(len(matched)) {
		return []*model.Event{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) CountByStatus(_ context.Context, statuses []model.EventStatus) (int64, error) {
	return int64(len(s.matching(statuses))), nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, from, to model.EventStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", eventserrors.ErrEventNotFound, id)
	}
	if event.Status != from {
		return fmt.Errorf("%w: %s expected %s", eventserrors.ErrStatusChanged, id, from)
	}
	event.Status = to
	event.UpdatedAt = at
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", eventserrors.ErrEventNotFound, id)
	}
	delete(s.events, id)
	return nil
}

// ExecuteTransaction runs fn directly; the store has no rollback.
func (s *Store) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(ctx)
}

// Status returns the stored status of an event, or "" when it is missing.
func (s *Store) Status(id string) model.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event, ok := s.events[id]; ok {
		return event.Status
	}
	return ""
}

func (s *Store) matching(statuses []model.EventStatus) []*model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Event
	for _, event := range s.events {
		if len(statuses) == 0 || containsStatus(statuses, event.Status) {
			cp := *event
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenAt.Equal(out[j].OpenAt) {
			return out[i].OpenAt.Before(out[j].OpenAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func containsStatus(statuses []model.EventStatus, status model.EventStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// SlotStore is the slot repository backed by the same Store.
type SlotStore struct {
	s *Store
}

func (ss *SlotStore) Create(_ context.Context, slot *model.Slot) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	if slot.ID == "" {
		slot.ID = primitive.NewObjectID().Hex()
	}
	now := mongotx.NowMillis(time.Now())
	slot.CreatedAt = now
	slot.UpdatedAt = now
	cp := *slot
	ss.s.slots[slot.ID] = &cp
	return nil
}

func (ss *SlotStore) FindByID(_ context.Context, id string) (*model.Slot, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	slot, ok := ss.s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", eventserrors.ErrSlotNotFound, id)
	}
	cp := *slot
	return &cp, nil
}

func (ss *SlotStore) FindByEvent(_ context.Context, eventID string) ([]*model.Slot, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var out []*model.Slot
	for _, slot := range ss.s.slots {
		if slot.EventID == eventID {
			cp := *slot
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ss *SlotStore) LockForUpdate(_ context.Context, id string) (*model.Slot, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	slot, ok := ss.s.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", eventserrors.ErrSlotNotFound, id)
	}
	slot.Version++
	cp := *slot
	return &cp, nil
}

func (ss *SlotStore) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var n int64
	for id, slot := range ss.s.slots {
		if slot.EventID == eventID {
			delete(ss.s.slots, id)
			n++
		}
	}
	return n, nil
}
