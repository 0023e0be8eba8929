package database

import (
	"context"
	"errors"
	"fmt"

	"appstore-notifications/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Store wraps the gorm handle used by the notification pipeline.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on top of db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecordIfNew inserts the ledger entry for notificationID unless one exists.
// The insert relies on the primary key with ON CONFLICT DO NOTHING, so among
// any number of concurrent callers for the same ID exactly one gets true.
func (s *Store) RecordIfNew(ctx context.Context, notificationID, notificationType string, rawPayload []byte) (bool, error) {
	if notificationID == "" {
		return false, fmt.Errorf("notification id is empty")
	}

	event := models.Event{
		NotificationID: notificationID,
		Type:           notificationType,
		PayloadJSON:    string(rawPayload),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record event %s: %w", notificationID, result.Error)
	}

	return result.RowsAffected == 1, nil
}

// GetEvent returns the ledger entry for notificationID
func (s *Store) GetEvent(ctx context.Context, notificationID string) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).Where("notification_id = ?", notificationID).First(&event).Error
	if err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

// CountEvents counts ledger entries for notificationID
func (s *Store) CountEvents(ctx context.Context, notificationID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("notification_id = ?", notificationID).
		Count(&count).Error
	return count, err
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
