package shared

import (
	"context"
	"time"
)

// Notification kinds.
const (
	NotifyStockReserved    = "stock.reserved"
	NotifyStockTallied     = "stock.tallied"
	NotifyMTOCreated       = "mto.created"
	NotifyMTOLineChanged   = "mto.line_changed"
	NotifyMTOStatusChanged = "mto.status_changed"
	NotifyPurchaseReceived = "purchase_order.received"
)

// Notification is a fire-and-forget message about a committed change.
type Notification struct {
	Kind       string    `json:"kind"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	ActorID    int64     `json:"actor_id,omitempty"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(context.Context, Notification) error { return nil }

// SendNotification delivers n and converts a failure into a warning.
func SendNotification(ctx context.Context, notifier Notifier, n Notification, warnings *Warnings) {
	if notifier == nil {
		return
	}
	warnings.Add(WarnNotificationFailed, notifier.Notify(ctx, n))
}
