package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tallyport/tallyport/internal/billing"
	"github.com/tallyport/tallyport/internal/metrics"
)

// BillingClient is the billing provider as seen by the HTTP layer.
type BillingClient interface {
	Status(ctx context.Context, dashboardToken string) (*billing.Snapshot, error)
	CreateCheckout(ctx context.Context, dashboardToken, planKey string) (string, error)
	CreatePortalSession(ctx context.Context, dashboardToken string) (string, error)
}

// dashboardToken reads the session cookie set by the link verifier.
func dashboardToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// HandleEntitlementStatus returns the provider's entitlement snapshot for the
// current session, or {linked:false} when no tenant is linked.
func HandleEntitlementStatus(client BillingClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := dashboardToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]bool{"linked": false})
			return
		}

		snapshot, err := client.Status(r.Context(), token)
		if err != nil {
			log.Println("Billing: Status fetch failed:", err.Error())
			writeError(w, http.StatusBadGateway, "Billing provider unavailable. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}

// CheckoutRequest represents the checkout payload
type CheckoutRequest struct {
	PlanKey string `json:"plan_key"`
}

// HandleCheckout proxies a checkout session request to the billing provider.
func HandleCheckout(client BillingClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := dashboardToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Link your account before purchasing a plan")
			return
		}

		var req CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.PlanKey != billing.PlanStarter && req.PlanKey != billing.PlanPro {
			writeError(w, http.StatusBadRequest, "Unknown plan")
			return
		}

		url, err := client.CreateCheckout(r.Context(), token, req.PlanKey)
		if err != nil {
			if errors.Is(err, billing.ErrUnlinked) {
				writeError(w, http.StatusUnauthorized, "Link your account before purchasing a plan")
				return
			}
			log.Println("Billing: Checkout failed:", err.Error())
			writeError(w, http.StatusBadGateway, "Billing provider unavailable. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// HandleManageBilling proxies a billing portal session request.
func HandleManageBilling(client BillingClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := dashboardToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Link your account to manage billing")
			return
		}

		url, err := client.CreatePortalSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, billing.ErrUnlinked) {
				writeError(w, http.StatusUnauthorized, "Link your account to manage billing")
				return
			}
			log.Println("Billing: Portal session failed:", err.Error())
			writeError(w, http.StatusBadGateway, "Billing provider unavailable. Please try again.")
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

// AwaitActivationResponse reports the terminal reconciliation state.
type AwaitActivationResponse struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// HandleAwaitActivation runs the entitlement reconciliation loop within the
// request: poll until the effective plan matches the target, the ceiling
// elapses, or the caller disconnects.
func HandleAwaitActivation(client BillingClient, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := dashboardToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, AwaitActivationResponse{State: "unlinked"})
			return
		}

		targetPlan := r.URL.Query().Get("plan")
		if targetPlan == "" {
			writeError(w, http.StatusBadRequest, "plan query parameter is required")
			return
		}

		reconciler := billing.NewReconciler(func(ctx context.Context) (*billing.Snapshot, error) {
			return client.Status(ctx, token)
		})

		outcome, err := reconciler.Await(r.Context(), targetPlan)
		if err != nil {
			if errors.Is(err, billing.ErrUnlinked) {
				collector.RecordReconcile("unlinked")
				writeJSON(w, http.StatusOK, AwaitActivationResponse{State: "unlinked"})
				return
			}
			// Caller went away; nothing useful to write.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				collector.RecordReconcile("canceled")
				return
			}
			collector.RecordReconcile("error")
			log.Println("Billing: Reconciliation failed:", err.Error())
			writeError(w, http.StatusBadGateway, "Billing provider unavailable. Please try again.")
			return
		}

		collector.RecordReconcile(string(outcome))
		resp := AwaitActivationResponse{State: string(outcome)}
		if outcome == billing.OutcomeStalled {
			resp.Message = billing.StalledMessage
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
