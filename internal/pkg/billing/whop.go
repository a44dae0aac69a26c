package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tradevault/TradeVault/internal/pkg/env"
)

const defaultWhopAPIBaseURL = "https://api.whop.com/api/v2"

// ErrProviderUnavailable marks failures where the billing provider could not
// be consulted at all. Callers must treat it as "cannot confirm membership",
// not as "confirmed no membership", and leave cached state untouched.
var ErrProviderUnavailable = errors.New("billing provider unavailable")

// WhopClient resolves a user's current paid-membership status from their
// email address via the Whop commerce API.
type WhopClient struct {
	APIKey  string
	BaseURL string

	HTTPClient *http.Client
}

func NewWhopClientFromEnv() *WhopClient {
	return &WhopClient{
		APIKey:  strings.TrimSpace(env.GetEnv("WHOP_API_KEY", "")),
		BaseURL: strings.TrimRight(env.GetEnv("WHOP_API_BASE_URL", defaultWhopAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolveActiveMembership returns the user's qualifying membership, or
// (nil, nil) when the provider reports none or cannot be asked conclusively.
// A membership in a grace-period or trial state (past_due, trialing) counts
// as active for product-access purposes.
func (c *WhopClient) ResolveActiveMembership(ctx context.Context, email string) (*Membership, error) {
	if c.APIKey == "" {
		log.Print("WHOP_API_KEY is not set, skipping membership lookup")
		return nil, nil
	}

	whopUserID, err := c.lookupUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	if whopUserID == "" {
		return nil, nil
	}

	return c.lookupMembership(ctx, whopUserID)
}

func (c *WhopClient) lookupUserID(ctx context.Context, email string) (string, error) {
	searchURL := fmt.Sprintf("%s/users/search?email=%s", c.BaseURL, url.QueryEscape(email))

	var raw struct {
		ID   string `json:"id"`
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	ok, err := c.getJSON(ctx, searchURL, &raw)
	if err != nil {
		return "", err
	}
	if !ok {
		// Non-success status is treated as "no data", not as an error.
		return "", nil
	}

	if len(raw.Data) > 0 {
		return strings.TrimSpace(raw.Data[0].ID), nil
	}
	return strings.TrimSpace(raw.ID), nil
}

func (c *WhopClient) lookupMembership(ctx context.Context, whopUserID string) (*Membership, error) {
	membershipsURL := fmt.Sprintf("%s/users/%s/memberships", c.BaseURL, url.PathEscape(whopUserID))

	var raw struct {
		Data []struct {
			ID               string `json:"id"`
			Status           string `json:"status"`
			PlanID           string `json:"plan_id"`
			BillingPeriod    string `json:"billing_period"`
			CurrentPeriodEnd int64  `json:"current_period_end"`
		} `json:"data"`
	}
	ok, err := c.getJSON(ctx, membershipsURL, &raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	// First qualifying membership in provider response order wins.
	for _, m := range raw.Data {
		if !isQualifyingStatus(m.Status) {
			continue
		}
		plan := strings.TrimSpace(m.PlanID)
		if plan == "" {
			plan = defaultPlan
		}
		return &Membership{
			Status:   "active",
			Plan:     plan,
			Interval: NormalizeInterval(m.BillingPeriod),
			EndDate:  PeriodEnd(m.CurrentPeriodEnd),
		}, nil
	}
	return nil, nil
}

// getJSON performs an authenticated GET. Transport failures surface as
// ErrProviderUnavailable; non-2xx responses return ok=false without error.
func (c *WhopClient) getJSON(ctx context.Context, rawURL string, out interface{}) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err)
	}
	return true, nil
}

func isQualifyingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "past_due", "trialing":
		return true
	default:
		return false
	}
}
