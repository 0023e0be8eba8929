package api

import (
	"errors"
	"net/http"
	"time"

	"appstore-notifications/internal/database"
	"appstore-notifications/internal/models"
	"appstore-notifications/internal/response"
	"appstore-notifications/pkg/logging"

	"github.com/gin-gonic/gin"
)

// SubscriptionResponse is the query API view of a subscription
type SubscriptionResponse struct {
	OriginalTransactionID string     `json:"original_transaction_id"`
	UserID                string     `json:"user_id"`
	ProductID             string     `json:"product_id"`
	Status                string     `json:"status"`
	IsActive              bool       `json:"is_active"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	GracePeriodExpiresAt  *time.Time `json:"grace_period_expires_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func newSubscriptionResponse(sub *models.Subscription, now time.Time) SubscriptionResponse {
	return SubscriptionResponse{
		OriginalTransactionID: sub.OriginalTransactionID,
		UserID:                sub.UserID,
		ProductID:             sub.ProductID,
		Status:                string(sub.Status),
		IsActive:              sub.IsActive(now),
		ExpiresAt:             sub.ExpiresAt,
		GracePeriodExpiresAt:  sub.GracePeriodExpiresAt,
		UpdatedAt:             sub.UpdatedAt,
	}
}

// GetSubscription gets one subscription
// GET /api/subscriptions/:originalTransactionId
func (h *Handlers) GetSubscription(c *gin.Context) {
	originalTransactionID := c.Param("originalTransactionId")

	sub, err := h.store.GetSubscription(c.Request.Context(), originalTransactionID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, "Subscription not found")
			return
		}
		logging.Errorf("Failed to get subscription %s: %v", originalTransactionID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to get subscription")
		return
	}

	response.SuccessJSON(c, newSubscriptionResponse(sub, h.now()))
}

// GetUserSubscriptions lists the subscriptions linked to an app account token
// GET /api/users/:appAccountToken/subscriptions
func (h *Handlers) GetUserSubscriptions(c *gin.Context) {
	token := c.Param("appAccountToken")

	subs, err := h.store.GetUserSubscriptions(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.ErrorJSON(c, http.StatusNotFound, "User not found")
			return
		}
		logging.Errorf("Failed to get subscriptions for user: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to get subscriptions")
		return
	}

	now := h.now()
	items := make([]SubscriptionResponse, 0, len(subs))
	for i := range subs {
		items = append(items, newSubscriptionResponse(&subs[i], now))
	}
	response.SuccessJSON(c, items)
}
