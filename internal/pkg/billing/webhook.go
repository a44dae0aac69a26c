package billing

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tradevault/TradeVault/app/models"
)

// Whop webhook actions this subsystem reacts to. Anything else is
// acknowledged without a state change for forward compatibility.
const (
	EventMembershipWentActive    = "membership.went_active"
	EventMembershipWentValid     = "membership.went_valid"
	EventPaymentSucceeded        = "payment.succeeded"
	EventMembershipWentCancelled = "membership.went_cancelled"
	EventMembershipWentExpired   = "membership.went_expired"
)

// WhopEvent is an inbound provider push notification.
type WhopEvent struct {
	Action string        `json:"action"`
	Data   WhopEventData `json:"data"`
}

type WhopEventData struct {
	ID               string `json:"id"`
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	Status           string `json:"status"`
	PlanID           string `json:"plan_id"`
	BillingPeriod    string `json:"billing_period"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Quantity         int    `json:"quantity"`
}

// ParseWhopEvent decodes and minimally validates a webhook payload.
func ParseWhopEvent(payload []byte) (*WhopEvent, error) {
	var ev WhopEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	ev.Action = strings.TrimSpace(ev.Action)
	ev.Data.Email = strings.TrimSpace(ev.Data.Email)
	if ev.Action == "" {
		return nil, errors.New("whop webhook payload missing action")
	}
	if ev.Data.Email == "" {
		return nil, errors.New("whop webhook payload missing email")
	}
	return &ev, nil
}

// Outcome describes what a processed webhook event did to local state.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeUnknownUser    Outcome = "unknown_user"
	OutcomeNoSubscription Outcome = "no_subscription"
	OutcomeIgnored        Outcome = "ignored"
)

// Ingestor applies provider-pushed events to the subscription store,
// independent of the reconciler's pull path. Both writers target the same
// keyed record; last write wins.
type Ingestor struct {
	store SubscriptionStore
	users UserFinder
}

// NewIngestor creates a webhook ingestor from injected collaborators.
func NewIngestor(store SubscriptionStore, users UserFinder) *Ingestor {
	return &Ingestor{store: store, users: users}
}

// Process applies one event. Benign no-ops (unknown user, unknown action,
// cancelling a non-existent record) return a nil error so the caller
// acknowledges the delivery and the provider does not retry.
func (i *Ingestor) Process(event *WhopEvent) (Outcome, error) {
	user, err := i.users.FindByEmail(event.Data.Email)
	if err != nil {
		return "", err
	}
	if user == nil {
		// A subscription must never be attached to a non-existent account;
		// the user has to sign up first.
		return OutcomeUnknownUser, nil
	}

	switch event.Action {
	case EventMembershipWentActive, EventMembershipWentValid, EventPaymentSucceeded:
		plan := strings.TrimSpace(event.Data.PlanID)
		if plan == "" {
			plan = defaultPlan
		}
		endDate := PeriodEnd(event.Data.CurrentPeriodEnd)
		sub := &models.Subscription{
			UserID:   user.ID,
			Email:    user.Email,
			Status:   models.SubscriptionStatusActive,
			Plan:     plan,
			Interval: NormalizeInterval(event.Data.BillingPeriod),
			EndDate:  &endDate,
		}
		if err := i.store.Upsert(sub); err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case EventMembershipWentCancelled, EventMembershipWentExpired:
		existing, err := i.store.GetByEmail(user.Email)
		if err != nil {
			return "", err
		}
		if existing == nil {
			// Nothing to cancel.
			return OutcomeNoSubscription, nil
		}
		if err := i.store.UpdateStatus(existing.ID, models.SubscriptionStatusCancelled); err != nil {
			return "", err
		}
		return OutcomeCancelled, nil

	default:
		return OutcomeIgnored, nil
	}
}
