package models

import "time"

// User is the local account a subscription belongs to. AppAccountToken is the
// appAccountToken the client attached to its purchase; it may be absent, but at
// most one user carries any given token.
type User struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	AppAccountToken *string   `json:"app_account_token,omitempty" gorm:"uniqueIndex;size:64"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Subscriptions []Subscription `json:"subscriptions,omitempty" gorm:"foreignKey:UserID;references:ID"`
}
