package model

import (
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationQueueReady           NotificationType = "QUEUE_READY"
	NotificationQueueUpdate          NotificationType = "QUEUE_UPDATE"
	NotificationReservationConfirmed NotificationType = "RESERVATION_CONFIRMED"
	NotificationReservationCancelled NotificationType = "RESERVATION_CANCELLED"
	NotificationEventReminder        NotificationType = "EVENT_REMINDER"
)

type Notification struct {
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func QueueReadyNotification(eventID, userID string, ttl time.Duration, now time.Time) Notification {
	return Notification{
		UserID:  userID,
		Type:    NotificationQueueReady,
		Title:   "It's your turn",
		Message: fmt.Sprintf("You can reserve now. Your turn expires in %d seconds.", int64(ttl/time.Second)),
		Data: map[string]any{
			"event_id":    eventID,
			"ttl_seconds": int64(ttl / time.Second),
		},
		CreatedAt: now,
	}
}

func QueueUpdateNotification(pos QueuePosition, now time.Time) Notification {
	return Notification{
		UserID:  pos.UserID,
		Type:    NotificationQueueUpdate,
		Title:   "Queue update",
		Message: fmt.Sprintf("You are number %d of %d in line.", pos.Position, pos.TotalInQueue),
		Data: map[string]any{
			"event_id":               pos.EventID,
			"position":               pos.Position,
			"total_in_queue":         pos.TotalInQueue,
			"estimated_wait_seconds": pos.EstimatedWaitSeconds,
		},
		CreatedAt: now,
	}
}

func ReservationConfirmedNotification(r *Reservation, now time.Time) Notification {
	return Notification{
		UserID:    r.UserID,
		Type:      NotificationReservationConfirmed,
		Title:     "Reservation confirmed",
		Message:   "Your reservation is confirmed.",
		Data:      reservationData(r),
		CreatedAt: now,
	}
}

func ReservationCancelledNotification(r *Reservation, now time.Time) Notification {
	return Notification{
		UserID:    r.UserID,
		Type:      NotificationReservationCancelled,
		Title:     "Reservation cancelled",
		Message:   "Your reservation was cancelled.",
		Data:      reservationData(r),
		CreatedAt: now,
	}
}

func reservationData(r *Reservation) map[string]any {
	data := map[string]any{
		"reservation_id": r.ID,
		"event_id":       r.EventID,
		"status":         string(r.Status),
	}
	if r.SlotID != "" {
		data["slot_id"] = r.SlotID
	}
	return data
}
