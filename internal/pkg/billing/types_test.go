package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tradevault/TradeVault/app/models"
)

func TestNormalizeInterval(t *testing.T) {
	cases := map[string]string{
		"month":    models.SubscriptionIntervalMonth,
		"monthly":  models.SubscriptionIntervalMonth,
		"Monthly":  models.SubscriptionIntervalMonth,
		"year":     models.SubscriptionIntervalYear,
		"yearly":   models.SubscriptionIntervalYear,
		"annual":   models.SubscriptionIntervalYear,
		"lifetime": models.SubscriptionIntervalLifetime,
		"once":     models.SubscriptionIntervalLifetime,
		"":         models.SubscriptionIntervalMonth,
		"weekly":   models.SubscriptionIntervalMonth,
		" YEAR ":   models.SubscriptionIntervalYear,
	}

	for input, want := range cases {
		assert.Equal(t, want, NormalizeInterval(input), "input %q", input)
	}
}

func TestPeriodEnd(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, PeriodEnd(at.Unix()).UTC())

	// Missing period end falls back to a 30 day window from now.
	fallback := PeriodEnd(0)
	assert.WithinDuration(t, time.Now().Add(defaultMembershipLength), fallback, 5*time.Second)
}
