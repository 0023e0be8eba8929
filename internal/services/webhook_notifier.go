package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"appstore-notifications/internal/models"
	"appstore-notifications/pkg/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Subscription-Signature"

// webhookBacklog bounds the deliveries waiting for a free sender.
const webhookBacklog = 256

type webhookDelivery struct {
	notification *models.Notification
	subscription models.Subscription
}

// WebhookNotifier forwards subscription changes to the app backend.
// Deliveries run on their own senders so a slow backend never holds a queue worker.
type WebhookNotifier struct {
	callbackURL string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration

	deliveries chan webhookDelivery
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	stopped    bool
}

// NewWebhookNotifier creates a new webhook notifier. An empty callbackURL disables it.
func NewWebhookNotifier(callbackURL, secret string) *WebhookNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebhookNotifier{
		callbackURL: callbackURL,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		deliveries:  make(chan webhookDelivery, webhookBacklog),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithRetryDelays replaces the retry schedule; one attempt is made per delay.
func (wn *WebhookNotifier) WithRetryDelays(delays ...time.Duration) *WebhookNotifier {
	wn.retryDelays = delays
	return wn
}

// WebhookPayload represents the payload sent to the app backend
type WebhookPayload struct {
	Event                 string  `json:"event"` // always "subscription.updated"
	NotificationID        string  `json:"notification_id"`
	NotificationType      string  `json:"notification_type"`
	OriginalTransactionID string  `json:"original_transaction_id"`
	UserID                string  `json:"user_id"`
	AppAccountToken       *string `json:"app_account_token,omitempty"`
	Status                string  `json:"status"`
	ProductID             string  `json:"product_id"`
	ExpiresDate           *string `json:"expires_date,omitempty"` // ISO 8601
	GracePeriodExpiresAt  *string `json:"grace_period_expires_date,omitempty"`
	Timestamp             string  `json:"timestamp"`
}

// Enabled reports whether a callback URL is configured.
func (wn *WebhookNotifier) Enabled() bool {
	return wn != nil && wn.callbackURL != ""
}

// Start launches the senders that drain Dispatch.
func (wn *WebhookNotifier) Start(senders int) {
	if !wn.Enabled() {
		return
	}
	wn.mu.Lock()
	defer wn.mu.Unlock()
	if wn.running || wn.stopped {
		return
	}
	if senders <= 0 {
		senders = 2
	}
	wn.running = true

	for i := 0; i < senders; i++ {
		wn.wg.Add(1)
		go wn.sender()
	}
}

// Dispatch queues a delivery and returns immediately. When the backlog is full
// the delivery is dropped and logged.
func (wn *WebhookNotifier) Dispatch(n *models.Notification, subscription *models.Subscription) {
	if !wn.Enabled() || subscription == nil {
		return
	}
	wn.mu.RLock()
	defer wn.mu.RUnlock()
	if wn.stopped {
		logging.Warnf("Webhook notifier stopped, dropping update for transaction %s", subscription.OriginalTransactionID)
		return
	}

	select {
	case wn.deliveries <- webhookDelivery{notification: n, subscription: *subscription}:
	default:
		logging.Errorf("Webhook backlog full, dropping update for transaction %s", subscription.OriginalTransactionID)
	}
}

// Stop waits for queued deliveries until ctx is done, then abandons the rest.
func (wn *WebhookNotifier) Stop(ctx context.Context) {
	if !wn.Enabled() {
		return
	}
	wn.mu.Lock()
	if wn.stopped {
		wn.mu.Unlock()
		return
	}
	wn.stopped = true
	close(wn.deliveries)
	wn.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wn.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logging.Warnf("Webhook notifier shutdown timed out, cancelling pending deliveries")
		wn.cancel()
		<-done
	}
	wn.cancel()
}

func (wn *WebhookNotifier) sender() {
	defer wn.wg.Done()
	for d := range wn.deliveries {
		if wn.ctx.Err() != nil {
			continue
		}
		if err := wn.NotifySubscriptionChange(wn.ctx, d.notification, &d.subscription); err != nil {
			logging.Errorf("Failed to forward subscription %s: %v", d.subscription.OriginalTransactionID, err)
		}
	}
}

// NotifySubscriptionChange sends the updated subscription to the app backend,
// retrying on failure. It gives up early when ctx is done.
func (wn *WebhookNotifier) NotifySubscriptionChange(ctx context.Context, n *models.Notification, subscription *models.Subscription) error {
	if !wn.Enabled() {
		return nil
	}

	payload := WebhookPayload{
		Event:                 "subscription.updated",
		NotificationID:        n.NotificationID,
		NotificationType:      n.RawType,
		OriginalTransactionID: subscription.OriginalTransactionID,
		UserID:                subscription.UserID,
		AppAccountToken:       n.Data.AppAccountToken,
		Status:                string(subscription.Status),
		ProductID:             subscription.ProductID,
		ExpiresDate:           formatOptionalTime(subscription.ExpiresAt),
		GracePeriodExpiresAt:  formatOptionalTime(subscription.GracePeriodExpiresAt),
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
	}

	return wn.sendWithRetry(ctx, payload)
}

// sendWithRetry makes one attempt per configured delay, waiting that delay after a failure.
func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, payload WebhookPayload) error {
	maxAttempts := len(wn.retryDelays)
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = wn.sendWebhook(ctx, payload)
		if lastErr == nil {
			logging.Infof("Webhook notification sent successfully - url: %s, transaction: %s, attempt: %d",
				wn.callbackURL, payload.OriginalTransactionID, attempt+1)
			return nil
		}

		logging.Errorf("Webhook notification failed - url: %s, transaction: %s, attempt: %d, error: %v",
			wn.callbackURL, payload.OriginalTransactionID, attempt+1, lastErr)

		if attempt < maxAttempts-1 {
			select {
			case <-time.After(wn.retryDelays[attempt]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// sendWebhook sends a single webhook request
func (wn *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.callbackURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AppStoreNotifications-Webhook/1.0")
	if wn.secret != "" {
		req.Header.Set(SignatureHeader, SignPayload(jsonData, wn.secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
