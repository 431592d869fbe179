// Package scheduler runs the two periodic loops of the admission system:
// promotion of queued users into the ready state, and the event lifecycle
// (SCHEDULED to OPEN to CLOSED). A failure on one event is logged and never
// stops the tick for the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	eventserrors "queuegate/internal/events/errors"
	"queuegate/internal/events/repository"
	"queuegate/internal/notifications"
	"queuegate/internal/queue"
	"queuegate/pkg/clock"
	"queuegate/pkg/config"
	"queuegate/pkg/logger"
	"queuegate/pkg/model"
)

type Scheduler struct {
	events   repository.EventRepository
	queue    queue.AdmissionQueue
	notifier notifications.Notifier
	clock    clock.Clock
	cfg      *config.Config
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(events repository.EventRepository, q queue.AdmissionQueue, notifier notifications.Notifier, clk clock.Clock, cfg *config.Config) *Scheduler {
	return &Scheduler{
		events:   events,
		queue:    q,
		notifier: notifier,
		clock:    clk,
		cfg:      cfg,
		log:      cfg.Log.WithComponent("scheduler"),
	}
}

// Start launches both loops and returns. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "queue_promotion", s.cfg.QueueCheckInterval, s.ProcessQueues)
	go s.loop(ctx, "event_lifecycle", s.cfg.EventLifecycleInterval, s.UpdateEventStatuses)

	s.log.Info("Scheduler started",
		"queue_check_interval", s.cfg.QueueCheckInterval,
		"lifecycle_interval", s.cfg.EventLifecycleInterval,
	)
}

// Stop cancels both loops and waits for the running ticks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Scheduler tick failed", "loop", name, "error", err)
			}
		}
	}
}

// ProcessQueues promotes the head of every open event's queue and tells the
// users still waiting where they stand.
func (s *Scheduler) ProcessQueues(ctx context.Context) error {
	events, err := s.collect(ctx, model.EventStatusOpen)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, event := range events {
		if !event.Settings.UseQueue || !event.CanReserve(now) {
			continue
		}
		s.isolate(ctx, "promote", event.ID, func(ctx context.Context) error {
			return s.promote(ctx, event, now)
		})
	}
	return nil
}

func (s *Scheduler) promote(ctx context.Context, event *model.Event, now time.Time) error {
	batch := event.Settings.BatchSize(s.cfg.QueueBatchSize)
	ttl := event.Settings.ReadyTTL(s.cfg.DefaultReservationTimeLimit)

	promoted, err := s.queue.Promote(ctx, event.ID, batch, ttl)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	if len(promoted) > 0 {
		ready := make([]model.Notification, 0, len(promoted))
		for _, userID := range promoted {
			ready = append(ready, model.QueueReadyNotification(event.ID, userID, ttl, now))
		}
		if err := s.notifier.NotifyBatch(ctx, ready); err != nil {
			s.log.Warn("Failed to notify promoted users", "event_id", event.ID, "users", len(promoted), "error", err)
		}
		s.log.Info("Users promoted", "event_id", event.ID, "count", len(promoted), "ttl", ttl)
	}

	return s.broadcastPositions(ctx, event.ID, batch, now)
}

func (s *Scheduler) broadcastPositions(ctx context.Context, eventID string, batch int, now time.Time) error {
	waiting, err := s.queue.PeekFront(ctx, eventID, s.cfg.QueuePositionPreview)
	if err != nil {
		return fmt.Errorf("peek: %w", err)
	}
	if len(waiting) == 0 {
		return nil
	}

	total, err := s.queue.Size(ctx, eventID)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}

	interval := s.cfg.QueueCheckIntervalSeconds()
	updates := make([]model.Notification, 0, len(waiting))
	for i, userID := range waiting {
		position := int64(i + 1)
		updates = append(updates, model.QueueUpdateNotification(model.QueuePosition{
			EventID:              eventID,
			UserID:               userID,
			Position:             position,
			TotalInQueue:         total,
			Status:               model.QueueStatusWaiting,
			EstimatedWaitSeconds: model.EstimateWaitSeconds(position, batch, interval),
		}, now))
	}

	if err := s.notifier.NotifyBatch(ctx, updates); err != nil {
		s.log.Warn("Failed to broadcast queue positions", "event_id", eventID, "users", len(updates), "error", err)
	}
	return nil
}

// UpdateEventStatuses opens scheduled events whose time has come and closes
// open events past their end, clearing the closed events' queues.
func (s *Scheduler) UpdateEventStatuses(ctx context.Context) error {
	now := s.clock.Now()

	scheduled, err := s.collect(ctx, model.EventStatusScheduled)
	if err != nil {
		return err
	}
	for _, event := range scheduled {
		if !event.ShouldOpen(now) {
			continue
		}
		s.isolate(ctx, "open", event.ID, func(ctx context.Context) error {
			return s.transition(ctx, event, model.EventStatusOpen, now)
		})
	}

	open, err := s.collect(ctx, model.EventStatusOpen)
	if err != nil {
		return err
	}
	for _, event := range open {
		if !event.ShouldClose(now) {
			continue
		}
		s.isolate(ctx, "close", event.ID, func(ctx context.Context) error {
			if err := s.transition(ctx, event, model.EventStatusClosed, now); err != nil {
				return err
			}
			return s.queue.Clear(ctx, event.ID)
		})
	}
	return nil
}

func (s *Scheduler) transition(ctx context.Context, event *model.Event, to model.EventStatus, now time.Time) error {
	err := s.events.UpdateStatus(ctx, event.ID, event.Status, to, now)
	if errors.Is(err, eventserrors.ErrStatusChanged) {
		s.log.Debug("Event status changed by another writer", "event_id", event.ID, "to", to)
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("Event status updated", "event_id", event.ID, "from", event.Status, "to", to)
	return nil
}

// collect reads every event in status, one page at a time.
func (s *Scheduler) collect(ctx context.Context, status model.EventStatus) ([]*model.Event, error) {
	pageSize := s.cfg.SchedulerEventPageSize
	if pageSize <= 0 {
		pageSize = config.DefaultSchedulerEventPageSize
	}

	var all []*model.Event
	var offset int64
	for {
		page, err := s.events.ListByStatus(ctx, []model.EventStatus{status}, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s events: %w", status, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += int64(len(page))
	}
}

// isolate runs fn for one event, turning errors and panics into log lines.
func (s *Scheduler) isolate(ctx context.Context, step, eventID string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Scheduler step panicked", "step", step, "event_id", eventID, "panic", r)
		}
	}()

	if err := fn(ctx); err != nil {
		s.log.Error("Scheduler step failed", "step", step, "event_id", eventID, "error", err)
	}
}
