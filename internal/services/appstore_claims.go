package services

import (
	"strconv"
	"time"

	"appstore-notifications/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// data fields consumed into typed NotificationData; everything else passes through
var consumedDataFields = map[string]bool{
	"appAccountToken":        true,
	"originalTransactionId":  true,
	"productId":              true,
	"expiresDate":            true,
	"gracePeriodExpiresDate": true,
}

// ClaimsValidator checks the environment and bundle claims and shapes the event data.
type ClaimsValidator struct {
	environment string
	bundleID    string
}

// NewClaimsValidator creates a claims validator for one environment and bundle.
func NewClaimsValidator(environment, bundleID string) *ClaimsValidator {
	return &ClaimsValidator{environment: environment, bundleID: bundleID}
}

// Validate turns verified claims into a Notification.
func (v *ClaimsValidator) Validate(claims jwt.MapClaims) (*models.Notification, error) {
	// identity is checked before the data shape; a non-object data only hides the nested fields
	nested, _ := claims["data"].(map[string]interface{})

	// Apple nests environment and bundleId in data; accept them at the top level too
	environment, err := lookupString(claims, nested, "environment")
	if err != nil {
		return nil, err
	}
	if environment != v.environment {
		return nil, verificationErrorf(KindIdentityMismatch, "environment mismatch: %q", environment)
	}
	bundleID, err := lookupString(claims, nested, "bundleId")
	if err != nil {
		return nil, err
	}
	if bundleID != v.bundleID {
		return nil, verificationErrorf(KindIdentityMismatch, "bundle ID mismatch: %q", bundleID)
	}

	data, hasData, err := objectClaim(claims, "data")
	if err != nil {
		return nil, err
	}

	notificationID, err := stringClaim(claims, "notificationUUID")
	if err != nil {
		return nil, err
	}
	if notificationID == "" {
		return nil, verificationErrorf(KindInvalidEventData, "notificationUUID is missing")
	}
	rawType, err := stringClaim(claims, "notificationType")
	if err != nil {
		return nil, err
	}
	subtype, err := stringClaim(claims, "subtype")
	if err != nil {
		return nil, err
	}
	signedDate, err := dateClaim(claims, "signedDate")
	if err != nil {
		return nil, err
	}

	if !hasData {
		return nil, verificationErrorf(KindInvalidEventData, "data is missing")
	}
	eventData, err := shapeEventData(data)
	if err != nil {
		return nil, err
	}

	return &models.Notification{
		NotificationID: notificationID,
		Type:           models.ParseNotificationType(rawType),
		RawType:        rawType,
		Subtype:        subtype,
		Environment:    environment,
		BundleID:       bundleID,
		SignedDate:     signedDate,
		Data:           *eventData,
		Claims:         map[string]interface{}(claims),
	}, nil
}

func shapeEventData(data map[string]interface{}) (*models.NotificationData, error) {
	originalTransactionID, err := stringClaim(data, "originalTransactionId")
	if err != nil {
		return nil, err
	}
	if originalTransactionID == "" {
		return nil, verificationErrorf(KindInvalidEventData, "originalTransactionId is missing")
	}

	eventData := &models.NotificationData{
		OriginalTransactionID: originalTransactionID,
		Extra:                 make(map[string]interface{}),
	}

	token, err := stringClaim(data, "appAccountToken")
	if err != nil {
		return nil, err
	}
	if token != "" {
		eventData.AppAccountToken = &token
	}
	if eventData.ProductID, err = stringClaim(data, "productId"); err != nil {
		return nil, err
	}
	if eventData.ExpiresAt, err = dateClaim(data, "expiresDate"); err != nil {
		return nil, err
	}
	if eventData.GracePeriodExpiresAt, err = dateClaim(data, "gracePeriodExpiresDate"); err != nil {
		return nil, err
	}

	for key, value := range data {
		if !consumedDataFields[key] {
			eventData.Extra[key] = value
		}
	}
	return eventData, nil
}

func objectClaim(claims map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	object, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false, verificationErrorf(KindInvalidEventData, "%s is not an object", key)
	}
	return object, true, nil
}

// lookupString prefers a top-level value; a present top-level value must be a string.
func lookupString(claims, data map[string]interface{}, key string) (string, error) {
	if raw, ok := claims[key]; ok && raw != nil {
		return stringClaim(claims, key)
	}
	value, _ := data[key].(string)
	return value, nil
}

// stringClaim returns "" for an absent key and an error for a non-string value.
func stringClaim(claims map[string]interface{}, key string) (string, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", verificationErrorf(KindInvalidEventData, "%s is not a string", key)
	}
	return value, nil
}

// dateClaim accepts Apple's millisecond timestamps as numbers or numeric strings, and RFC 3339 strings.
func dateClaim(claims map[string]interface{}, key string) (*time.Time, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return nil, nil
	}

	var t time.Time
	switch value := raw.(type) {
	case float64:
		t = time.UnixMilli(int64(value))
	case int64:
		t = time.UnixMilli(value)
	case string:
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			t = time.UnixMilli(ms)
		} else if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			t = parsed
		} else {
			return nil, verificationErrorf(KindInvalidEventData, "%s is not a valid date: %q", key, value)
		}
	default:
		return nil, verificationErrorf(KindInvalidEventData, "%s has unsupported type %T", key, raw)
	}

	t = t.UTC()
	return &t, nil
}
