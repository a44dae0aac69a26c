package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradevault/TradeVault/app/models"
	"github.com/tradevault/TradeVault/internal/pkg/billing"
	"github.com/tradevault/TradeVault/internal/pkg/usercontext"
)

type memSubscriptionStore struct {
	mu        sync.Mutex
	byEmail   map[string]*models.Subscription
	upsertErr error
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{byEmail: make(map[string]*models.Subscription)}
}

func (s *memSubscriptionStore) GetByEmail(email string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *memSubscriptionStore) setUpsertErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertErr = err
}

func (s *memSubscriptionStore) Upsert(sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	if existing, ok := s.byEmail[sub.Email]; ok {
		sub.ID = existing.ID
	} else if sub.ID == "" {
		sub.ID = "sub-test"
	}
	cp := *sub
	s.byEmail[sub.Email] = &cp
	return nil
}

func (s *memSubscriptionStore) UpdateStatus(id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.byEmail {
		if sub.ID == id {
			sub.Status = status
		}
	}
	return nil
}

type memUserFinder struct {
	byEmail map[string]*models.User
}

func (f *memUserFinder) FindByEmail(email string) (*models.User, error) {
	return f.byEmail[email], nil
}

type memEventStore struct {
	mu     sync.Mutex
	nextID uint
	seen   map[string]*models.BillingWebhookEvent
}

func newMemEventStore() *memEventStore {
	return &memEventStore{seen: make(map[string]*models.BillingWebhookEvent)}
}

func (s *memEventStore) CreateIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := s.seen[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	s.nextID++
	event.ID = s.nextID
	cp := *event
	s.seen[key] = &cp
	return true, &cp, nil
}

func (s *memEventStore) MarkProcessed(id uint, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, ev := range s.seen {
		if ev.ID == id {
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

func (s *memEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type nilProvider struct{}

func (nilProvider) ResolveActiveMembership(ctx context.Context, email string) (*billing.Membership, error) {
	return nil, nil
}

const testWebhookSecret = "whsec_test"

func newWebhookTestApp(t *testing.T, store *memSubscriptionStore, events *memEventStore, secret string) *fiber.App {
	t.Helper()
	users := &memUserFinder{byEmail: map[string]*models.User{
		"b@x.com": {ID: 12, Email: "b@x.com"},
	}}
	bc := NewBillingControllerWithDeps(
		billing.NewService(store, nilProvider{}),
		billing.NewIngestor(store, users),
		events,
		secret,
	)

	app := fiber.New()
	app.Post("/api/webhooks/whop", bc.HandleWhopWebhook)
	return app
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWhopWebhookAppliesActivationEvent(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":"membership.went_valid","data":{"email":"b@x.com","plan_id":"plan_elite","billing_period":"yearly","current_period_end":1790000000}}`)
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Whop-Signature", signBody(body))
	req.Header.Set("Whop-Webhook-ID", "evt_1")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sub, err := store.GetByEmail("b@x.com")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "plan_elite", sub.Plan)
	assert.Equal(t, models.SubscriptionIntervalYear, sub.Interval)
}

func TestWhopWebhookRejectsInvalidSignature(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":"membership.went_valid","data":{"email":"b@x.com"}}`)
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", "deadbeef")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, events.count(), "rejected deliveries are not recorded")

	sub, _ := store.GetByEmail("b@x.com")
	assert.Nil(t, sub)
}

func TestWhopWebhookDeduplicatesRedelivery(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":"membership.went_cancelled","data":{"email":"b@x.com"}}`)
	sig := signBody(body)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
		req.Header.Set("Whop-Signature", sig)
		req.Header.Set("Whop-Webhook-ID", "evt_dup")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var payload map[string]interface{}
		raw, _ := io.ReadAll(resp.Body)
		require.NoError(t, json.Unmarshal(raw, &payload))
		if i == 1 {
			assert.Equal(t, true, payload["duplicate"])
		}
	}
	assert.Equal(t, 1, events.count())
}

func TestWhopWebhookRedeliveryRetriesFailedProcessing(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":"membership.went_valid","data":{"email":"b@x.com","plan_id":"plan_pro","billing_period":"monthly"}}`)
	sig := signBody(body)

	// First delivery hits a store outage and must answer 500 so the
	// provider redelivers.
	store.setUpsertErr(errors.New("connection refused"))
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", sig)
	req.Header.Set("Whop-Webhook-ID", "evt_retry")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	sub, _ := store.GetByEmail("b@x.com")
	assert.Nil(t, sub)

	// The redelivery after recovery carries the same delivery ID; it must be
	// reprocessed, not swallowed as a duplicate.
	store.setUpsertErr(nil)
	req = httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", sig)
	req.Header.Set("Whop-Webhook-ID", "evt_retry")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sub, err = store.GetByEmail("b@x.com")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, 1, events.count(), "redelivery reuses the recorded event")

	// A third delivery arrives after successful processing and is now a
	// plain duplicate ack.
	req = httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", sig)
	req.Header.Set("Whop-Webhook-ID", "evt_retry")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, true, payload["duplicate"])
}

func TestWhopWebhookMalformedPayloadReturns500(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":`)
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", signBody(body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, events.count(), "the delivery is still recorded for inspection")
}

func TestWhopWebhookUnknownUserIsAcknowledged(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, testWebhookSecret)

	body := []byte(`{"action":"membership.went_valid","data":{"email":"stranger@x.com"}}`)
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))
	req.Header.Set("Whop-Signature", signBody(body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sub, _ := store.GetByEmail("stranger@x.com")
	assert.Nil(t, sub)
}

func TestWhopWebhookWithoutConfiguredSecret(t *testing.T) {
	store := newMemSubscriptionStore()
	events := newMemEventStore()
	app := newWebhookTestApp(t, store, events, "")

	// No secret configured: deliveries are accepted unverified.
	body := []byte(`{"action":"membership.went_valid","data":{"email":"b@x.com","plan_id":"plan_pro"}}`)
	req := httptest.NewRequest("POST", "/api/webhooks/whop", bytes.NewReader(body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	sub, _ := store.GetByEmail("b@x.com")
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestGetSubscriptionEndpoint(t *testing.T) {
	store := newMemSubscriptionStore()
	end := time.Now().Add(20 * 24 * time.Hour)
	require.NoError(t, store.Upsert(&models.Subscription{
		UserID:   12,
		Email:    "b@x.com",
		Status:   models.SubscriptionStatusActive,
		Plan:     "plan_pro",
		Interval: models.SubscriptionIntervalMonth,
		EndDate:  &end,
	}))

	bc := NewBillingControllerWithDeps(
		billing.NewService(store, nilProvider{}),
		billing.NewIngestor(store, &memUserFinder{byEmail: map[string]*models.User{}}),
		newMemEventStore(),
		testWebhookSecret,
	)

	app := fiber.New()
	app.Get("/api/v1/subscription", func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{
			UserID:     12,
			Email:      "b@x.com",
			IsLoggedIn: true,
		})
		return c.Next()
	}, bc.HandleGetSubscription)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/subscription", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Subscription *billing.SubscriptionWithPrice `json:"subscription"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NotNil(t, payload.Subscription)
	assert.Equal(t, "active", payload.Subscription.Status)
	assert.Equal(t, "plan_pro", payload.Subscription.Plan.ID)
	assert.Equal(t, end.Unix(), payload.Subscription.CurrentPeriodEnd)

	// Anonymous callers get a 401, not an empty subscription.
	app2 := fiber.New()
	app2.Get("/api/v1/subscription", bc.HandleGetSubscription)
	resp2, err := app2.Test(httptest.NewRequest("GET", "/api/v1/subscription", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp2.StatusCode)
}
