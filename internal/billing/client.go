package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tallyport/tallyport/internal/config"
)

// Effective plan keys reported by the billing provider.
const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
)

var (
	// ErrUnlinked means the provider knows no tenant for the presented
	// dashboard token. Not a failure: the caller runs the linking flow.
	ErrUnlinked = errors.New("no billing tenant linked for this credential")

	// ErrUnreachable covers network failures, timeouts and provider-side
	// errors. The caller's recovery is retry, not re-linking.
	ErrUnreachable = errors.New("billing provider unreachable")
)

// Snapshot is the provider's authoritative entitlement state. EffectivePlan
// is precomputed by the provider (any status other than active/trialing
// collapses to free); this service reads it and never re-derives it.
type Snapshot struct {
	Linked             bool   `json:"linked"`
	Plan               string `json:"plan"`
	SubscriptionStatus string `json:"subscription_status"`
	EffectivePlan      string `json:"effective_plan"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart *int64 `json:"current_period_start"`
	CurrentPeriodEnd   *int64 `json:"current_period_end"`
}

// Client talks to the billing provider API. State is written only by the
// provider's own webhook pipeline; this client is read/proxy only.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a billing provider client
func NewClient(cfg config.BillingConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the current entitlement snapshot for a dashboard token.
func (c *Client) Status(ctx context.Context, dashboardToken string) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/entitlement", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Dashboard-Token", dashboardToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Provider has no tenant for this token.
		return &Snapshot{Linked: false, EffectivePlan: PlanFree}, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, string(body))
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode entitlement response: %w", err)
	}

	return &snapshot, nil
}

type sessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckout opens a provider checkout session for the given plan and
// returns the redirect URL.
func (c *Client) CreateCheckout(ctx context.Context, dashboardToken, planKey string) (string, error) {
	return c.createSession(ctx, "/v1/checkout", dashboardToken, map[string]string{"plan": planKey})
}

// CreatePortalSession opens the provider's self-serve billing portal and
// returns the redirect URL.
func (c *Client) CreatePortalSession(ctx context.Context, dashboardToken string) (string, error) {
	return c.createSession(ctx, "/v1/portal", dashboardToken, nil)
}

func (c *Client) createSession(ctx context.Context, path, dashboardToken string, params map[string]string) (string, error) {
	payloadBytes, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Dashboard-Token", dashboardToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrUnlinked
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrUnreachable, resp.StatusCode, string(body))
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if session.URL == "" {
		return "", fmt.Errorf("session response missing url")
	}

	return session.URL, nil
}
