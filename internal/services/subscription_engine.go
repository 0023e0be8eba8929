package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"appstore-notifications/internal/database"
	"appstore-notifications/internal/models"
	"appstore-notifications/pkg/logging"
)

// SubscriptionStore is the persistence the engine needs.
type SubscriptionStore interface {
	FindOrCreateUser(ctx context.Context, token *string) (*models.User, error)
	GetSubscription(ctx context.Context, originalTransactionID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, subscription *models.Subscription) (*models.Subscription, error)
}

// SubscriptionEngine applies verified notifications to subscription state.
//
// Events are applied in arrival order. A stale redelivery that arrives after
// a newer event overwrites the newer state.
type SubscriptionEngine struct {
	store SubscriptionStore
	now   func() time.Time
}

// NewSubscriptionEngine 创建订阅状态引擎
func NewSubscriptionEngine(store SubscriptionStore, now func() time.Time) *SubscriptionEngine {
	if now == nil {
		now = time.Now
	}
	return &SubscriptionEngine{store: store, now: now}
}

// Apply maps the notification to a status and upserts the subscription.
// Unrecognized notification types return (nil, nil) without touching storage.
func (e *SubscriptionEngine) Apply(ctx context.Context, n *models.Notification) (*models.Subscription, error) {
	status, ok := n.Type.TargetStatus()
	if !ok {
		logging.Infof("Ignoring unrecognized notification type %q (notification %s)", n.RawType, n.NotificationID)
		return nil, nil
	}

	user, err := e.resolveUser(ctx, n.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	subscription := &models.Subscription{
		OriginalTransactionID: n.Data.OriginalTransactionID,
		UserID:                user.ID,
		ProductID:             n.Data.ProductID,
		Status:                status,
		ExpiresAt:             n.Data.ExpiresAt,
		GracePeriodExpiresAt:  n.Data.GracePeriodExpiresAt,
	}
	if n.Type == models.NotificationTypeRevoke {
		now := e.now().UTC()
		subscription.ExpiresAt = &now
		subscription.GracePeriodExpiresAt = nil
	}

	updated, err := e.store.UpsertSubscription(ctx, subscription)
	if err != nil {
		return nil, err
	}

	logging.Infof("Subscription %s is now %s (notification %s, type %s)",
		updated.OriginalTransactionID, updated.Status, n.NotificationID, n.RawType)
	return updated, nil
}

// resolveUser links the notification to a user. Without an appAccountToken the
// owner of an existing subscription is reused so that token-less renewals do
// not create orphan users.
func (e *SubscriptionEngine) resolveUser(ctx context.Context, data models.NotificationData) (*models.User, error) {
	if data.AppAccountToken != nil {
		return e.store.FindOrCreateUser(ctx, data.AppAccountToken)
	}

	existing, err := e.store.GetSubscription(ctx, data.OriginalTransactionID)
	switch {
	case err == nil:
		return &models.User{ID: existing.UserID}, nil
	case errors.Is(err, database.ErrNotFound):
		return e.store.FindOrCreateUser(ctx, nil)
	default:
		return nil, err
	}
}
