package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradevault/TradeVault/app/models"
)

type fakeStore struct {
	mu      sync.Mutex
	byEmail map[string]*models.Subscription

	getErr        error
	upsertCount   int
	statusUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byEmail: make(map[string]*models.Subscription)}
}

func (f *fakeStore) GetByEmail(email string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeStore) Upsert(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCount++
	if existing, ok := f.byEmail[sub.Email]; ok {
		sub.ID = existing.ID
	} else if sub.ID == "" {
		sub.ID = fmt.Sprintf("sub-%d", len(f.byEmail)+1)
	}
	cp := *sub
	f.byEmail[sub.Email] = &cp
	return nil
}

func (f *fakeStore) UpdateStatus(id string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates++
	for _, sub := range f.byEmail {
		if sub.ID == id {
			sub.Status = status
			return nil
		}
	}
	return errors.New("subscription not found")
}

func (f *fakeStore) get(email string) *models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.byEmail[email]
	if !ok {
		return nil
	}
	cp := *sub
	return &cp
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCount, f.statusUpdates
}

type fakeProvider struct {
	mu         sync.Mutex
	membership *Membership
	err        error
	calls      int

	gate chan struct{} // when set, ResolveActiveMembership blocks until closed
}

func (f *fakeProvider) ResolveActiveMembership(ctx context.Context, email string) (*Membership, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.membership, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func activeSubscription(email string) *models.Subscription {
	end := time.Now().Add(20 * 24 * time.Hour)
	return &models.Subscription{
		ID:       "sub-local",
		UserID:   7,
		Email:    email,
		Status:   models.SubscriptionStatusActive,
		Plan:     "pro",
		Interval: models.SubscriptionIntervalMonth,
		EndDate:  &end,
	}
}

func TestGetCurrentSubscriptionServesLocalStateWithoutWaitingOnProvider(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Upsert(activeSubscription("a@x.com")))

	provider := &fakeProvider{gate: make(chan struct{})}
	svc := NewService(store, provider)

	done := make(chan *SubscriptionWithPrice, 1)
	go func() {
		done <- svc.GetCurrentSubscription(7, "a@x.com")
	}()

	// The fast path must answer while the provider call is still hanging.
	var view *SubscriptionWithPrice
	select {
	case view = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("GetCurrentSubscription blocked on the provider call")
	}
	require.NotNil(t, view)
	assert.Equal(t, "active", view.Status)
	assert.Equal(t, "pro", view.Plan.ID)
	assert.Equal(t, models.SubscriptionIntervalMonth, view.Plan.Interval)

	close(provider.gate)
	require.Eventually(t, func() bool {
		return provider.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "background revalidation never ran")
}

func TestGetCurrentSubscriptionNilWithoutLocalRecord(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc := NewService(store, provider)

	assert.Nil(t, svc.GetCurrentSubscription(1, "nobody@x.com"))

	// The revalidation still runs and still finds nothing to write.
	require.Eventually(t, func() bool {
		return provider.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	upserts, updates := store.counts()
	assert.Zero(t, upserts)
	assert.Zero(t, updates)
}

func TestGetCurrentSubscriptionNilForCancelledRecord(t *testing.T) {
	store := newFakeStore()
	sub := activeSubscription("a@x.com")
	sub.Status = models.SubscriptionStatusCancelled
	require.NoError(t, store.Upsert(sub))

	svc := NewService(store, &fakeProvider{})
	assert.Nil(t, svc.GetCurrentSubscription(7, "a@x.com"))
}

func TestGetCurrentSubscriptionSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection reset")

	svc := NewService(store, &fakeProvider{})
	assert.Nil(t, svc.GetCurrentSubscription(7, "a@x.com"))
}

func TestGetCurrentSubscriptionWithEmptyEmail(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeProvider{})
	assert.Nil(t, svc.GetCurrentSubscription(0, ""))
}

func TestRevalidateCreatesRecordForNewMembership(t *testing.T) {
	store := newFakeStore()
	end := time.Now().Add(25 * 24 * time.Hour)
	provider := &fakeProvider{membership: &Membership{
		Status:   "active",
		Plan:     "plan_elite",
		Interval: models.SubscriptionIntervalYear,
		EndDate:  end,
	}}
	svc := NewService(store, provider)

	require.NoError(t, svc.Revalidate(context.Background(), 42, "b@x.com"))

	sub := store.get("b@x.com")
	require.NotNil(t, sub)
	assert.Equal(t, uint(42), sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "plan_elite", sub.Plan)
	assert.Equal(t, models.SubscriptionIntervalYear, sub.Interval)
	require.NotNil(t, sub.EndDate)
	assert.WithinDuration(t, end, *sub.EndDate, time.Second)
}

func TestRevalidateRevokesStaleActiveRecord(t *testing.T) {
	store := newFakeStore()
	original := activeSubscription("a@x.com")
	require.NoError(t, store.Upsert(original))

	// Provider no longer knows a membership for this email.
	svc := NewService(store, &fakeProvider{membership: nil})
	require.NoError(t, svc.Revalidate(context.Background(), 7, "a@x.com"))

	sub := store.get("a@x.com")
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Status)
	// Revocation flips the status only; plan and period survive for display.
	assert.Equal(t, original.Plan, sub.Plan)
	require.NotNil(t, sub.EndDate)
	assert.WithinDuration(t, *original.EndDate, *sub.EndDate, time.Second)
}

func TestRevalidateIsIdempotentForRevokedRecord(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Upsert(activeSubscription("a@x.com")))
	svc := NewService(store, &fakeProvider{membership: nil})

	require.NoError(t, svc.Revalidate(context.Background(), 7, "a@x.com"))
	require.NoError(t, svc.Revalidate(context.Background(), 7, "a@x.com"))

	_, updates := store.counts()
	assert.Equal(t, 1, updates, "second pass must not rewrite an already revoked record")
}

func TestRevalidateNoopWhenAbsentEverywhere(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeProvider{membership: nil})

	require.NoError(t, svc.Revalidate(context.Background(), 1, "ghost@x.com"))

	upserts, updates := store.counts()
	assert.Zero(t, upserts)
	assert.Zero(t, updates)
}

func TestRevalidateKeepsStateWhenProviderUnavailable(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Upsert(activeSubscription("a@x.com")))

	provider := &fakeProvider{err: fmt.Errorf("%w: connect timeout", ErrProviderUnavailable)}
	svc := NewService(store, provider)

	// An outage is not evidence of revocation; the error is swallowed.
	require.NoError(t, svc.Revalidate(context.Background(), 7, "a@x.com"))

	sub := store.get("a@x.com")
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestRevalidateRefreshesPlanChange(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.Upsert(activeSubscription("a@x.com")))

	end := time.Now().Add(300 * 24 * time.Hour)
	provider := &fakeProvider{membership: &Membership{
		Status:   "active",
		Plan:     "plan_elite",
		Interval: models.SubscriptionIntervalYear,
		EndDate:  end,
	}}
	svc := NewService(store, provider)

	require.NoError(t, svc.Revalidate(context.Background(), 7, "a@x.com"))

	sub := store.get("a@x.com")
	require.NotNil(t, sub)
	assert.Equal(t, "sub-local", sub.ID, "upsert must keep the existing record identity")
	assert.Equal(t, "plan_elite", sub.Plan)
	assert.Equal(t, models.SubscriptionIntervalYear, sub.Interval)
}
