package models

import (
	"time"
)

// SubscriptionStatus is the closed set of subscription states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusInGracePeriod  SubscriptionStatus = "in_grace_period"
	SubscriptionStatusInBillingRetry SubscriptionStatus = "in_billing_retry"
	SubscriptionStatusExpired        SubscriptionStatus = "expired"
	SubscriptionStatusRefunded       SubscriptionStatus = "refunded"
)

// Valid reports whether s is one of the known statuses.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusInGracePeriod, SubscriptionStatusInBillingRetry,
		SubscriptionStatusExpired, SubscriptionStatusRefunded:
		return true
	}
	return false
}

// Subscription 订阅模型
// One row per original transaction, updated in place across renewals. Rows are never deleted.
type Subscription struct {
	OriginalTransactionID string             `json:"original_transaction_id" gorm:"primaryKey;size:100"`
	UserID                string             `json:"user_id" gorm:"not null;size:36;index"`
	ProductID             string             `json:"product_id" gorm:"size:100"`
	Status                SubscriptionStatus `json:"status" gorm:"not null;size:20;index"`
	ExpiresAt             *time.Time         `json:"expires_at"`
	GracePeriodExpiresAt  *time.Time         `json:"grace_period_expires_at"`
	CreatedAt             time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time          `json:"updated_at" gorm:"autoUpdateTime"`
}

// IsActive reports whether the subscription currently grants access.
func (s *Subscription) IsActive(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusActive:
		return s.ExpiresAt == nil || s.ExpiresAt.After(now)
	case SubscriptionStatusInGracePeriod:
		return s.GracePeriodExpiresAt != nil && s.GracePeriodExpiresAt.After(now)
	}
	return false
}
