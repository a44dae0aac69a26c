package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/tradevault/TradeVault/app/models"
)

// MembershipResolver is the provider-side contract the reconciler depends on.
type MembershipResolver interface {
	ResolveActiveMembership(ctx context.Context, email string) (*Membership, error)
}

// Service reconciles locally cached subscription state against the billing
// provider. Reads are served from the local store immediately; a detached
// revalidation refreshes the store in the background so the caller never
// blocks on an external network call.
type Service struct {
	store    SubscriptionStore
	provider MembershipResolver

	revalidateTimeout time.Duration
}

// NewService creates a reconciler from an injected store and provider client.
func NewService(store SubscriptionStore, provider MembershipResolver) *Service {
	return &Service{
		store:             store,
		provider:          provider,
		revalidateTimeout: 15 * time.Second,
	}
}

// GetCurrentSubscription returns the last-known subscription view for the
// user, or nil when there is no active subscription on record. Regardless of
// the result it kicks off a background revalidation against the provider;
// the caller never waits on it. A just-revoked membership therefore still
// grants access until the next call observes the refreshed store.
func (s *Service) GetCurrentSubscription(userID uint, email string) *SubscriptionWithPrice {
	if email == "" {
		return nil
	}

	local, err := s.store.GetByEmail(email)
	if err != nil {
		// Subscription status must never block unrelated page rendering.
		log.Printf("subscription lookup for %s failed: %v", email, err)
		local = nil
	}

	// Detached from the request lifecycle on purpose: the task runs on its
	// own context and outlives the HTTP response that triggered it.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.revalidateTimeout)
		defer cancel()
		if err := s.Revalidate(ctx, userID, email); err != nil {
			log.Printf("background subscription revalidation for %s failed: %v", email, err)
		}
	}()

	if local == nil || !local.IsActive() {
		return nil
	}

	view := &SubscriptionWithPrice{
		ID:     local.ID,
		Status: "active",
		Plan: PlanInfo{
			ID:       local.Plan,
			Name:     local.Plan,
			Interval: local.Interval,
		},
	}
	if view.Plan.Interval == "" {
		view.Plan.Interval = models.SubscriptionIntervalMonth
	}
	if local.EndDate != nil {
		view.CurrentPeriodEnd = local.EndDate.Unix()
	}
	return view
}

// Revalidate pulls the provider's view of the membership and converges the
// store towards it. Provider outages leave the store untouched: stale-active-
// until-proven-otherwise favors availability over strict freshness.
func (s *Service) Revalidate(ctx context.Context, userID uint, email string) error {
	local, err := s.store.GetByEmail(email)
	if err != nil {
		return err
	}

	membership, err := s.provider.ResolveActiveMembership(ctx, email)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			log.Printf("billing provider unavailable for %s, keeping cached state: %v", email, err)
			return nil
		}
		return err
	}

	if membership != nil {
		// Provider confirms an active membership: make the store match.
		// This creates first-time records and refreshes stale ones; a plan
		// change or renewal becomes visible on the next call.
		sub := &models.Subscription{
			UserID:   userID,
			Email:    email,
			Status:   models.SubscriptionStatusActive,
			Plan:     membership.Plan,
			Interval: membership.Interval,
			EndDate:  &membership.EndDate,
		}
		if local != nil {
			sub.ID = local.ID
			if sub.UserID == 0 {
				sub.UserID = local.UserID
			}
		}
		return s.store.Upsert(sub)
	}

	// Provider confirms no membership. Only a previously active local record
	// needs a write; anything else would be needless churn.
	if local != nil && local.IsActive() {
		log.Printf("[revocation] %s has an active local subscription but no provider membership, revoking", email)
		return s.store.UpdateStatus(local.ID, models.SubscriptionStatusCancelled)
	}
	return nil
}
