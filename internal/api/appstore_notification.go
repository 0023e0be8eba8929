package api

import (
	"net/http"
	"time"

	"appstore-notifications/internal/models"
	"appstore-notifications/internal/response"
	"appstore-notifications/pkg/logging"

	"github.com/gin-gonic/gin"
)

// AppStoreNotificationHandler acknowledges an App Store Server Notification
// once it is queued. Verification and state changes happen in the queue
// worker, so the response never reveals whether the payload was authentic.
func (h *Handlers) AppStoreNotificationHandler(c *gin.Context) {
	startTime := time.Now()

	var wrapper models.AppStoreNotificationWrapper
	if err := c.ShouldBindJSON(&wrapper); err != nil {
		logging.Warnf("Invalid App Store notification envelope: %v", err)
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid notification format")
		return
	}

	if err := h.queue.Enqueue(c.Request.Context(), wrapper.SignedPayload); err != nil {
		// not acknowledged, so Apple will redeliver
		logging.Errorf("Failed to queue App Store notification: %v", err)
		response.ErrorJSON(c, http.StatusServiceUnavailable, "Notification could not be queued")
		return
	}

	logging.Infof("App Store notification queued in %v", time.Since(startTime))
	response.AcceptedJSON(c)
}
