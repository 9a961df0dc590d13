package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tallyport/tallyport/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.BillingConfig{BaseURL: baseURL, APIKey: "test-key"})
}

func TestStatusReturnsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/entitlement" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("X-Dashboard-Token") != "dtok" {
			t.Errorf("missing dashboard token header")
		}
		periodEnd := int64(1700000000)
		json.NewEncoder(w).Encode(Snapshot{
			Linked:             true,
			Plan:               PlanPro,
			SubscriptionStatus: "active",
			EffectivePlan:      PlanPro,
			CurrentPeriodEnd:   &periodEnd,
		})
	}))
	defer srv.Close()

	snapshot, err := newTestClient(srv.URL).Status(context.Background(), "dtok")
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if !snapshot.Linked || snapshot.EffectivePlan != PlanPro {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.CurrentPeriodEnd == nil || *snapshot.CurrentPeriodEnd != 1700000000 {
		t.Fatalf("period end not decoded: %+v", snapshot)
	}
}

func TestStatusUnknownTenantIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	snapshot, err := newTestClient(srv.URL).Status(context.Background(), "stale-token")
	if err != nil {
		t.Fatalf("expected no error for unknown tenant, got %v", err)
	}
	if snapshot.Linked {
		t.Fatal("expected linked=false")
	}
	if snapshot.EffectivePlan != PlanFree {
		t.Fatalf("expected effective plan free, got %s", snapshot.EffectivePlan)
	}
}

func TestStatusProviderErrorIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Status(context.Background(), "dtok")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestStatusNetworkFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).Status(context.Background(), "dtok")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestCreateCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["plan"] != PlanStarter {
			t.Errorf("expected plan starter, got %q", body["plan"])
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://pay.example.com/cs_123"})
	}))
	defer srv.Close()

	url, err := newTestClient(srv.URL).CreateCheckout(context.Background(), "dtok", PlanStarter)
	if err != nil {
		t.Fatalf("CreateCheckout returned error: %v", err)
	}
	if url != "https://pay.example.com/cs_123" {
		t.Fatalf("unexpected url %q", url)
	}
}

func TestCreateCheckoutUnlinked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateCheckout(context.Background(), "dtok", PlanPro)
	if !errors.Is(err, ErrUnlinked) {
		t.Fatalf("expected ErrUnlinked, got %v", err)
	}
}

func TestCreatePortalSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/portal" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://pay.example.com/portal_123"})
	}))
	defer srv.Close()

	url, err := newTestClient(srv.URL).CreatePortalSession(context.Background(), "dtok")
	if err != nil {
		t.Fatalf("CreatePortalSession returned error: %v", err)
	}
	if url != "https://pay.example.com/portal_123" {
		t.Fatalf("unexpected url %q", url)
	}
}
