// Package notifications carries user notifications from the services that
// produce them to the API instances holding the users' streams.
//
// Producers call a Notifier. The Kafka publisher writes to the notifications
// topic keyed by user id; every API instance consumes the whole topic with its
// own consumer group and hands payloads to its in-process Hub, which pushes
// them to connected Server-Sent Events clients. Delivery is best effort.
package notifications

import (
	"context"

	"queuegate/pkg/model"
)

type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
	NotifyBatch(ctx context.Context, ns []model.Notification) error
}

// HubNotifier delivers straight to a local hub, skipping the broker. The API
// uses it when NOTIFICATION_TRANSPORT=local.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(_ context.Context, notification model.Notification) error {
	payload, err := encode(notification)
	if err != nil {
		return err
	}
	n.hub.Deliver(notification.UserID, payload)
	return nil
}

func (n *HubNotifier) NotifyBatch(ctx context.Context, ns []model.Notification) error {
	for _, notification := range ns {
		if err := n.Notify(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}
