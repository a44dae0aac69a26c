package billing

import (
	"strings"
	"time"

	"github.com/tradevault/TradeVault/app/models"
)

const (
	defaultPlan = "pro"

	// Fallback access window when the provider omits current_period_end.
	defaultMembershipLength = 30 * 24 * time.Hour
)

// Membership is the normalized provider-side view of a paid membership.
// Status is always "active" here; grace-period states (past_due, trialing)
// are folded into it at the provider boundary.
type Membership struct {
	Status   string
	Plan     string
	Interval string
	EndDate  time.Time
}

// PlanInfo describes the plan attached to a subscription view.
type PlanInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
}

// SubscriptionWithPrice is the caller-facing view returned by the
// reconciler's fast path.
type SubscriptionWithPrice struct {
	ID               string   `json:"id"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	Plan             PlanInfo `json:"plan"`
}

// NormalizeInterval maps raw provider billing periods onto the local
// interval set. Unrecognized values fall back to monthly.
func NormalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "month", "monthly":
		return models.SubscriptionIntervalMonth
	case "year", "yearly", "annual":
		return models.SubscriptionIntervalYear
	case "lifetime", "once":
		return models.SubscriptionIntervalLifetime
	default:
		return models.SubscriptionIntervalMonth
	}
}

// PeriodEnd converts a provider current_period_end (unix seconds) into an
// absolute time, defaulting to now plus the fallback window when absent.
func PeriodEnd(unixSeconds int64) time.Time {
	if unixSeconds > 0 {
		return time.Unix(unixSeconds, 0)
	}
	return time.Now().Add(defaultMembershipLength)
}
