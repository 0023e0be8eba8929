package models

import "time"

// AppStoreNotificationWrapper represents the outer wrapper of App Store Server Notification V2
// Apple sends notifications as a JWS in the signedPayload field
type AppStoreNotificationWrapper struct {
	SignedPayload string `json:"signedPayload" binding:"required"`
}

// NotificationType is the closed set of notification kinds the service acts on.
// Anything Apple sends that is not listed here parses to NotificationTypeUnrecognized.
type NotificationType int

const (
	NotificationTypeUnrecognized NotificationType = iota
	NotificationTypeSubscribed
	NotificationTypeDidRenew
	NotificationTypeDidRecover
	NotificationTypeDidFailToRenew
	NotificationTypeDidChangeRenewalPref
	NotificationTypePriceIncrease
	NotificationTypeGracePeriod
	NotificationTypeGracePeriodExpired
	NotificationTypeExpired
	NotificationTypeDidCancel
	NotificationTypeRefund
	NotificationTypeRefundDeclined
	NotificationTypeConsumptionRequest
	NotificationTypeRevoke
)

var notificationTypeNames = map[string]NotificationType{
	"SUBSCRIBED":              NotificationTypeSubscribed,
	"DID_RENEW":               NotificationTypeDidRenew,
	"DID_RECOVER":             NotificationTypeDidRecover,
	"DID_FAIL_TO_RENEW":       NotificationTypeDidFailToRenew,
	"DID_CHANGE_RENEWAL_PREF": NotificationTypeDidChangeRenewalPref,
	"PRICE_INCREASE":          NotificationTypePriceIncrease,
	"GRACE_PERIOD":            NotificationTypeGracePeriod,
	"GRACE_PERIOD_EXPIRED":    NotificationTypeGracePeriodExpired,
	"EXPIRED":                 NotificationTypeExpired,
	"DID_CANCEL":              NotificationTypeDidCancel,
	"REFUND":                  NotificationTypeRefund,
	"REFUND_DECLINED":         NotificationTypeRefundDeclined,
	"CONSUMPTION_REQUEST":     NotificationTypeConsumptionRequest,
	"REVOKE":                  NotificationTypeRevoke,
}

// ParseNotificationType maps Apple's notificationType string onto the known set.
func ParseNotificationType(raw string) NotificationType {
	if t, ok := notificationTypeNames[raw]; ok {
		return t
	}
	return NotificationTypeUnrecognized
}

// TargetStatus returns the subscription status a notification type moves to.
// ok is false for NotificationTypeUnrecognized.
func (t NotificationType) TargetStatus() (status SubscriptionStatus, ok bool) {
	switch t {
	case NotificationTypeSubscribed, NotificationTypeDidRenew, NotificationTypeDidRecover:
		return SubscriptionStatusActive, true
	case NotificationTypeDidFailToRenew, NotificationTypeDidChangeRenewalPref, NotificationTypePriceIncrease:
		return SubscriptionStatusInBillingRetry, true
	case NotificationTypeGracePeriod, NotificationTypeGracePeriodExpired:
		return SubscriptionStatusInGracePeriod, true
	case NotificationTypeExpired, NotificationTypeDidCancel, NotificationTypeRevoke:
		return SubscriptionStatusExpired, true
	case NotificationTypeRefund, NotificationTypeRefundDeclined, NotificationTypeConsumptionRequest:
		return SubscriptionStatusRefunded, true
	case NotificationTypeUnrecognized:
		return "", false
	}
	return "", false
}

// Notification is the decoded form of an App Store server notification.
// The processing pipeline only handles values returned by
// services.NotificationVerifier; a hand-built Notification carries no proof
// of verification.
type Notification struct {
	NotificationID string           // notificationUUID, the deduplication key
	Type           NotificationType // parsed notificationType
	RawType        string           // notificationType exactly as sent
	Subtype        string
	Environment    string
	BundleID       string
	SignedDate     *time.Time
	Data           NotificationData
	Claims         map[string]interface{} // verified claims, kept for the audit ledger
}

// NotificationData is the shape-validated event data nested in the claims.
type NotificationData struct {
	AppAccountToken       *string
	OriginalTransactionID string
	ProductID             string
	ExpiresAt             *time.Time
	GracePeriodExpiresAt  *time.Time
	Extra                 map[string]interface{} // passthrough of the remaining data fields
}
