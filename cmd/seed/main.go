package main

import (
	"context"
	"log"
	"time"

	"appstore-notifications/internal/config"
	"appstore-notifications/internal/database"
	"appstore-notifications/internal/models"
	"appstore-notifications/pkg/logging"
)

const (
	seedAccountToken          = "test-account-token"
	seedOriginalTransactionID = "test-transaction-1"
	seedProductID             = "test.product.id"
)

// seed creates a test user with one active subscription. Running it again
// refreshes the expiry but never duplicates rows.
func main() {
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	logging.InitLogging()

	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	ctx := context.Background()
	store := database.NewStore(database.GetDB())

	token := seedAccountToken
	user, err := store.FindOrCreateUser(ctx, &token)
	if err != nil {
		log.Fatal("Failed to seed user:", err)
	}

	expiresAt := time.Now().UTC().AddDate(0, 0, 30)
	sub, err := store.UpsertSubscription(ctx, &models.Subscription{
		OriginalTransactionID: seedOriginalTransactionID,
		UserID:                user.ID,
		ProductID:             seedProductID,
		Status:                models.SubscriptionStatusActive,
		ExpiresAt:             &expiresAt,
	})
	if err != nil {
		log.Fatal("Failed to seed subscription:", err)
	}

	logging.Infof("Seeded user %s with subscription %s (%s, expires %s)",
		user.ID, sub.OriginalTransactionID, sub.Status, sub.ExpiresAt.Format(time.RFC3339))
}
