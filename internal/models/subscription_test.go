package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionIsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"active without expiry", Subscription{Status: SubscriptionStatusActive}, true},
		{"active not yet expired", Subscription{Status: SubscriptionStatusActive, ExpiresAt: &future}, true},
		{"active but lapsed", Subscription{Status: SubscriptionStatusActive, ExpiresAt: &past}, false},
		{"grace period open", Subscription{Status: SubscriptionStatusInGracePeriod, GracePeriodExpiresAt: &future}, true},
		{"grace period closed", Subscription{Status: SubscriptionStatusInGracePeriod, GracePeriodExpiresAt: &past}, false},
		{"billing retry", Subscription{Status: SubscriptionStatusInBillingRetry, ExpiresAt: &future}, false},
		{"refunded", Subscription{Status: SubscriptionStatusRefunded}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.IsActive(now))
		})
	}
}
