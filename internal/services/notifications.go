package services

import (
	"context"
	"time"

	domain "github.com/orchidmarket/api/internal/domain"
	"github.com/orchidmarket/api/internal/repositories"
)

const defaultNotifyTimeout = 10 * time.Second

// Notification event names published for downstream workers.
const (
	notificationEventStatusChanged  = "order.status.changed"
	notificationEventPaymentSettled = "order.payment.settled"
)

// notificationDispatcher fans order notifications out to the configured
// Notifier without ever delaying or failing the caller. Publishes run in a
// detached goroutine with their own deadline; failures are logged only.
type notificationDispatcher struct {
	notifier Notifier
	users    repositories.UserRepository
	timeout  time.Duration
	logger   func(context.Context, string, map[string]any)
}

func newNotificationDispatcher(notifier Notifier, users repositories.UserRepository, timeout time.Duration, logger func(context.Context, string, map[string]any)) *notificationDispatcher {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &notificationDispatcher{
		notifier: notifier,
		users:    users,
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch enriches the notification with the owner's e-mail and publishes it
// in the background.
func (d *notificationDispatcher) Dispatch(ctx context.Context, notification domain.OrderNotification) {
	if d == nil || d.notifier == nil {
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		if notification.RecipientEmail == "" && d.users != nil && notification.UserID != "" {
			profile, err := d.users.FindByID(ctx, notification.UserID)
			if err != nil {
				d.logger(ctx, "order.notification.recipient_lookup_failed", map[string]any{
					"order": notification.OrderID,
					"user":  notification.UserID,
					"error": err.Error(),
				})
			} else {
				notification.RecipientEmail = profile.Email
			}
		}

		if err := d.notifier.Publish(ctx, notification); err != nil {
			d.logger(ctx, "order.notification.publish_failed", map[string]any{
				"event": notification.Event,
				"order": notification.OrderID,
				"error": err.Error(),
			})
		}
	}()
}
