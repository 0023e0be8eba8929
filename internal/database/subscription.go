package database

import (
	"context"
	"fmt"

	"appstore-notifications/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// FindUserByToken 通过 appAccountToken 获取用户
func (s *Store) FindUserByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("app_account_token = ?", token).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindOrCreateUser returns the user owning token, creating it when unknown.
// A nil token always creates a fresh user.
func (s *Store) FindOrCreateUser(ctx context.Context, token *string) (*models.User, error) {
	if token == nil {
		return s.CreateUser(ctx, nil)
	}

	user, err := s.FindUserByToken(ctx, *token)
	if err == nil {
		return user, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	// Two notifications for a new token can race here; the unique index
	// decides and the loser reads the winner's row.
	candidate := models.User{ID: uuid.New().String(), AppAccountToken: token}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "app_account_token"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.FindUserByToken(ctx, *token)
}

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, token *string) (*models.User, error) {
	user := models.User{ID: uuid.New().String(), AppAccountToken: token}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// GetSubscription 通过原始交易ID获取订阅
func (s *Store) GetSubscription(ctx context.Context, originalTransactionID string) (*models.Subscription, error) {
	var subscription models.Subscription
	err := s.db.WithContext(ctx).
		Where("original_transaction_id = ?", originalTransactionID).
		First(&subscription).Error
	if err != nil {
		return nil, translate(err)
	}
	return &subscription, nil
}

// GetUserSubscriptions returns every subscription owned by the user holding token
func (s *Store) GetUserSubscriptions(ctx context.Context, token string) ([]models.Subscription, error) {
	user, err := s.FindUserByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var subscriptions []models.Subscription
	err = s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&subscriptions).Error
	return subscriptions, err
}

// UpsertSubscription creates the subscription or, when one exists for the same
// original transaction, overwrites its status and dates. UserID and ProductID
// keep the values from creation.
func (s *Store) UpsertSubscription(ctx context.Context, subscription *models.Subscription) (*models.Subscription, error) {
	if !subscription.Status.Valid() {
		return nil, fmt.Errorf("invalid subscription status %q", subscription.Status)
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "original_transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "expires_at", "grace_period_expires_at", "updated_at"}),
		}).
		Create(subscription).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription %s: %w", subscription.OriginalTransactionID, err)
	}

	return s.GetSubscription(ctx, subscription.OriginalTransactionID)
}
