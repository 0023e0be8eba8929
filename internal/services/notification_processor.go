package services

import (
	"context"
	"encoding/json"
	"fmt"

	"appstore-notifications/internal/models"
	"appstore-notifications/pkg/logging"
)

// EventLedger records processed notification IDs.
type EventLedger interface {
	RecordIfNew(ctx context.Context, notificationID, notificationType string, rawPayload []byte) (bool, error)
}

type notificationVerifier interface {
	Verify(ctx context.Context, signedPayload string) (*models.Notification, error)
}

type stateApplier interface {
	Apply(ctx context.Context, n *models.Notification) (*models.Subscription, error)
}

// NotificationProcessor runs phase two of ingress: verify, deduplicate, apply.
type NotificationProcessor struct {
	verifier notificationVerifier
	ledger   EventLedger
	engine   stateApplier
	notifier *WebhookNotifier
	alerter  Alerter
}

// NewNotificationProcessor creates a notification processor. notifier and alerter may be nil.
func NewNotificationProcessor(verifier *NotificationVerifier, ledger EventLedger, engine *SubscriptionEngine, notifier *WebhookNotifier, alerter Alerter) *NotificationProcessor {
	if alerter == nil {
		alerter = LogAlerter{}
	}
	return &NotificationProcessor{
		verifier: verifier,
		ledger:   ledger,
		engine:   engine,
		notifier: notifier,
		alerter:  alerter,
	}
}

// Process handles one signedPayload. It returns an error only when the ledger
// could not be consulted, in which case the job is safe to retry. Verification
// and state application failures are logged and absorbed.
func (p *NotificationProcessor) Process(ctx context.Context, signedPayload string) error {
	notification, err := p.verifier.Verify(ctx, signedPayload)
	if err != nil {
		kind, _ := KindOf(err)
		logging.Warnf("Dropping App Store notification - kind: %s, error: %v", kind, err)
		return nil
	}

	raw, err := json.Marshal(notification.Claims)
	if err != nil {
		logging.Errorf("Failed to encode claims of notification %s: %v", notification.NotificationID, err)
		raw = []byte("{}")
	}

	isNew, err := p.ledger.RecordIfNew(ctx, notification.NotificationID, notification.RawType, raw)
	if err != nil {
		return fmt.Errorf("failed to record notification %s: %w", notification.NotificationID, err)
	}
	if !isNew {
		logging.Infof("Duplicate App Store notification %s ignored", notification.NotificationID)
		return nil
	}

	subscription, err := p.engine.Apply(ctx, notification)
	if err != nil {
		logging.Errorf("Failed to apply notification %s (%s) to transaction %s: %v",
			notification.NotificationID, notification.RawType, notification.Data.OriginalTransactionID, err)
		p.alert(ctx, notification, err)
		return nil
	}
	p.notifier.Dispatch(notification, subscription)
	return nil
}

func (p *NotificationProcessor) alert(ctx context.Context, n *models.Notification, cause error) {
	subject := "Subscription state not applied"
	message := fmt.Sprintf("notification: %s\ntype: %s\noriginal transaction: %s\nerror: %v",
		n.NotificationID, n.RawType, n.Data.OriginalTransactionID, cause)
	if err := p.alerter.Alert(ctx, subject, message); err != nil {
		logging.Errorf("Failed to send alert for notification %s: %v", n.NotificationID, err)
	}
}
