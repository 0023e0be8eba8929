package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"appstore-notifications/internal/database"
	"appstore-notifications/internal/middleware"
	"appstore-notifications/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "admin-key"

type fakeQueue struct {
	mu       sync.Mutex
	payloads []string
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, signedPayload string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.payloads = append(q.payloads, signedPayload)
	return nil
}

func (q *fakeQueue) Start() {}

func (q *fakeQueue) Stop() {}

type fakeStore struct {
	subscriptions map[string]*models.Subscription
	byToken       map[string][]models.Subscription
}

func (s *fakeStore) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	if sub, ok := s.subscriptions[id]; ok {
		return sub, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) GetUserSubscriptions(_ context.Context, token string) ([]models.Subscription, error) {
	if subs, ok := s.byToken[token]; ok {
		return subs, nil
	}
	return nil, database.ErrNotFound
}

func newTestRouter(q *fakeQueue, store *fakeStore, ping func(context.Context) error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandlers(q, store, ping, "test-service", "Sandbox")
	h.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	SetupRoutes(r, h, testAdminKey)
	return r
}

func doRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAppStoreNotificationHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		queueErr error
		want     int
		queued   int
	}{
		{"valid envelope", `{"signedPayload":"a.b.c"}`, nil, http.StatusOK, 1},
		{"unverifiable payload is still acknowledged", `{"signedPayload":"garbage"}`, nil, http.StatusOK, 1},
		{"missing signedPayload", `{}`, nil, http.StatusBadRequest, 0},
		{"empty signedPayload", `{"signedPayload":""}`, nil, http.StatusBadRequest, 0},
		{"not json", `signedPayload=a.b.c`, nil, http.StatusBadRequest, 0},
		{"queue unavailable", `{"signedPayload":"a.b.c"}`, errors.New("redis down"), http.StatusServiceUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/appstore-webhooks", "/api/appstore/notifications"} {
				q := &fakeQueue{err: tt.queueErr}
				w := doRequest(newTestRouter(q, &fakeStore{}, nil), http.MethodPost, path, tt.body, nil)
				assert.Equal(t, tt.want, w.Code, path)
				assert.Len(t, q.payloads, tt.queued, path)
			}
		})
	}
}

func TestSubscriptionQueryAPI(t *testing.T) {
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	sub := &models.Subscription{
		OriginalTransactionID: "T1",
		UserID:                "u-1",
		ProductID:             "monthly",
		Status:                models.SubscriptionStatusActive,
		ExpiresAt:             &expires,
	}
	store := &fakeStore{
		subscriptions: map[string]*models.Subscription{"T1": sub},
		byToken:       map[string][]models.Subscription{"token-1": {*sub}},
	}
	r := newTestRouter(&fakeQueue{}, store, nil)
	auth := map[string]string{middleware.APIKeyHeader: testAdminKey}

	w := doRequest(r, http.MethodGet, "/api/subscriptions/T1", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	var single struct {
		Success bool                 `json:"success"`
		Data    SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &single))
	assert.True(t, single.Success)
	assert.Equal(t, "active", single.Data.Status)
	assert.True(t, single.Data.IsActive)

	w = doRequest(r, http.MethodGet, "/api/users/token-1/subscriptions", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []SubscriptionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/subscriptions/T2", "", auth).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodGet, "/api/users/unknown/subscriptions", "", auth).Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodGet, "/api/subscriptions/T1", "", nil).Code)
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestRouter(&fakeQueue{}, &fakeStore{}, func(context.Context) error { return nil }), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = doRequest(newTestRouter(&fakeQueue{}, &fakeStore{}, func(context.Context) error { return errors.New("db down") }), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestIndex(t *testing.T) {
	w := doRequest(newTestRouter(&fakeQueue{}, &fakeStore{}, nil), http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test-service")
	assert.Contains(t, w.Body.String(), "/appstore-webhooks")
}
