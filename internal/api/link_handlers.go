package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tallyport/tallyport/internal/config"
	"github.com/tallyport/tallyport/internal/link"
	"github.com/tallyport/tallyport/internal/metrics"
	"github.com/tallyport/tallyport/internal/models"
)

// sessionCookieName carries the owner's dashboard token. Setting it is the
// single side effect downstream pages treat as "linked".
const sessionCookieName = "dash_token"

const sessionCookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// LinkService is the linking flow as seen by the HTTP layer.
type LinkService interface {
	Start(ctx context.Context, requesterID int, rawPhone string) error
	Verify(ctx context.Context, requesterID int, rawPhone, code string) (*models.Owner, error)
}

// StartLinkRequest represents the link start payload
type StartLinkRequest struct {
	TargetPhone string `json:"target_phone"`
}

// VerifyLinkRequest represents the link verify payload
type VerifyLinkRequest struct {
	TargetPhone string `json:"target_phone"`
	Code        string `json:"code"`
}

// HandleStartLink generates and delivers a one-time code for the phone the
// requester wants to prove control of.
func HandleStartLink(svc LinkService, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requesterFromContext(r)

		var req StartLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		err := svc.Start(r.Context(), user.ID, req.TargetPhone)
		if err != nil {
			var deliveryErr *link.DeliveryError
			switch {
			case errors.Is(err, link.ErrInvalidPhone):
				collector.RecordLinkStart("invalid_phone")
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.As(err, &deliveryErr):
				collector.RecordLinkStart("delivery_failed")
				log.Println("Link: Code delivery failed:", err.Error())
				writeError(w, http.StatusInternalServerError, "Failed to deliver verification code. Please try again.")
			default:
				collector.RecordLinkStart("error")
				log.Println("Link: Start failed:", err.Error())
				writeError(w, http.StatusInternalServerError, "Failed to start verification")
			}
			return
		}

		collector.RecordLinkStart("ok")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// VerifyLinkResponse represents a successful verification
type VerifyLinkResponse struct {
	OK      bool   `json:"ok"`
	Linked  bool   `json:"linked"`
	OwnerID string `json:"owner_id"`
}

// HandleVerifyLink validates a submitted code, resolves the owner and issues
// the session cookie carrying the owner's dashboard token.
func HandleVerifyLink(svc LinkService, cfg *config.Config, collector *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := requesterFromContext(r)

		var req VerifyLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		owner, err := svc.Verify(r.Context(), user.ID, req.TargetPhone, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, link.ErrInvalidPhone),
				errors.Is(err, link.ErrNoChallenge),
				errors.Is(err, link.ErrCodeExpired),
				errors.Is(err, link.ErrCodeMismatch):
				collector.RecordLinkVerify("rejected")
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, link.ErrOwnerNotFound):
				collector.RecordLinkVerify("owner_not_found")
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, link.ErrOwnerMisconfigured):
				collector.RecordLinkVerify("owner_misconfigured")
				log.Println("Link: Owner misconfigured:", err.Error())
				writeError(w, http.StatusInternalServerError, "Account configuration problem. Please contact support.")
			default:
				collector.RecordLinkVerify("error")
				log.Println("Link: Verify failed:", err.Error())
				writeError(w, http.StatusInternalServerError, "Verification failed. Please try again.")
			}
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    owner.DashboardToken,
			Path:     "/",
			Domain:   cfg.CookieDomain,
			MaxAge:   sessionCookieMaxAge,
			HttpOnly: true,
			Secure:   cfg.Environment == "production",
			SameSite: http.SameSiteLaxMode,
		})

		collector.RecordLinkVerify("ok")
		writeJSON(w, http.StatusOK, VerifyLinkResponse{
			OK:      true,
			Linked:  true,
			OwnerID: owner.ID,
		})
	}
}
