package api

import (
	"context"
	"net/http"
	"time"

	"appstore-notifications/internal/middleware"
	"appstore-notifications/internal/models"
	"appstore-notifications/internal/queue"

	"github.com/gin-gonic/gin"
)

// SubscriptionReader is the read side of the subscription store
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, originalTransactionID string) (*models.Subscription, error)
	GetUserSubscriptions(ctx context.Context, token string) ([]models.Subscription, error)
}

// Handlers holds the collaborators of the HTTP handlers
type Handlers struct {
	queue       queue.Queue
	store       SubscriptionReader
	ping        func(ctx context.Context) error
	serviceName string
	environment string
	now         func() time.Time
}

// NewHandlers creates the HTTP handlers. ping backs the health check.
func NewHandlers(q queue.Queue, store SubscriptionReader, ping func(ctx context.Context) error, serviceName, environment string) *Handlers {
	return &Handlers{
		queue:       q,
		store:       store,
		ping:        ping,
		serviceName: serviceName,
		environment: environment,
		now:         time.Now,
	}
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handlers, adminAPIKey string) {
	r.GET("/", h.Index)
	r.GET("/health", h.Health)

	// Apple calls this without credentials; the payload carries its own signature
	r.POST("/appstore-webhooks", h.AppStoreNotificationHandler)

	api := r.Group("/api")
	{
		api.POST("/appstore/notifications", h.AppStoreNotificationHandler)

		admin := api.Group("")
		admin.Use(middleware.APIKeyAuthMiddleware(adminAPIKey))
		{
			admin.GET("/subscriptions/:originalTransactionId", h.GetSubscription)
			admin.GET("/users/:appAccountToken/subscriptions", h.GetUserSubscriptions)
		}
	}
}

// Index describes the service
func (h *Handlers) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     h.serviceName,
		"environment": h.environment,
		"endpoints": []string{
			"POST /appstore-webhooks",
			"POST /api/appstore/notifications",
			"GET /api/subscriptions/:originalTransactionId",
			"GET /api/users/:appAccountToken/subscriptions",
			"GET /health",
		},
	})
}

// Health checks the database and Redis
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.ping != nil {
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": h.serviceName,
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": h.serviceName,
	})
}
