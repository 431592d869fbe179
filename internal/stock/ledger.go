package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var ErrSoldOut = errors.New("sold out")

type Kind string

const (
	KindEvent Kind = "event"
	KindSlot  Kind = "slot"
)

// Resource identifies one stock counter: the event-wide counter or a slot's.
type Resource struct {
	Kind Kind
	ID   string
}

func EventResource(eventID string) Resource {
	return Resource{Kind: KindEvent, ID: eventID}
}

func SlotResource(slotID string) Resource {
	return Resource{Kind: KindSlot, ID: slotID}
}

// For returns the slot counter when slotID is set, the event counter otherwise.
func For(eventID, slotID string) Resource {
	if slotID != "" {
		return SlotResource(slotID)
	}
	return EventResource(eventID)
}

func (r Resource) Key() string {
	return fmt.Sprintf("stock:%s:%s", r.Kind, r.ID)
}

func (r Resource) String() string {
	return r.Key()
}

// Ledger is the authoritative remaining-capacity counter per resource.
type Ledger interface {
	// Decrement takes one unit. It returns the remaining count, or ErrSoldOut
	// when no unit was available; the counter is never left negative.
	Decrement(ctx context.Context, res Resource) (int64, error)
	Increment(ctx context.Context, res Resource) (int64, error)
	Initialize(ctx context.Context, res Resource, quantity int64) error
	Peek(ctx context.Context, res Resource) (int64, error)
	Delete(ctx context.Context, res ...Resource) error
}

type redisLedger struct {
	rdb redis.Cmdable
}

func NewRedisLedger(rdb redis.Cmdable) Ledger {
	return &redisLedger{rdb: rdb}
}

// Decrement is a single DECR. A result below zero means the unit never
// existed, so it is given back with INCR. A missing key decrements to -1 and is
// therefore sold out.
func (l *redisLedger) Decrement(ctx context.Context, res Resource) (int64, error) {
	remaining, err := l.rdb.Decr(ctx, res.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement %s: %w", res, err)
	}
	if remaining >= 0 {
		return remaining, nil
	}

	if err := l.rdb.Incr(ctx, res.Key()).Err(); err != nil {
		return 0, fmt.Errorf("failed to compensate %s after sold out: %w", res, err)
	}
	return 0, ErrSoldOut
}

func (l *redisLedger) Increment(ctx context.Context, res Resource) (int64, error) {
	n, err := l.rdb.Incr(ctx, res.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", res, err)
	}
	return n, nil
}

func (l *redisLedger) Initialize(ctx context.Context, res Resource, quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("invalid quantity %d for %s", quantity, res)
	}
	if err := l.rdb.Set(ctx, res.Key(), quantity, 0).Err(); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", res, err)
	}
	return nil
}

// Peek returns the remaining count; a missing counter reads as zero.
func (l *redisLedger) Peek(ctx context.Context, res Resource) (int64, error) {
	val, err := l.rdb.Get(ctx, res.Key()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", res, err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s: %w", res, err)
	}
	return max(n, 0), nil
}

func (l *redisLedger) Delete(ctx context.Context, res ...Resource) error {
	if len(res) == 0 {
		return nil
	}
	keys := make([]string, len(res))
	for i, r := range res {
		keys[i] = r.Key()
	}
	if err := l.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete stock counters: %w", err)
	}
	return nil
}
