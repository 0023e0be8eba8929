package models

import "time"

// Event is the append-only ledger entry for a processed notification.
// The primary key on NotificationID is what guarantees at-most-once processing.
type Event struct {
	NotificationID string    `json:"notification_id" gorm:"primaryKey;size:64"`
	Type           string    `json:"type" gorm:"not null;size:64;index"`
	PayloadJSON    string    `json:"payload_json" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Event) TableName() string {
	return "events"
}
