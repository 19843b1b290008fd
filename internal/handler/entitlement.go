package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/billing"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/store"
)

const trialDuration = 14 * 24 * time.Hour

type EntitlementHandler struct {
	users    *store.UserStore
	subs     *store.SubscriptionStore
	resolver *entitlement.Resolver
	billing  *billing.Client
	logger   *slog.Logger
}

func NewEntitlementHandler(users *store.UserStore, subs *store.SubscriptionStore, resolver *entitlement.Resolver, billingClient *billing.Client, logger *slog.Logger) *EntitlementHandler {
	return &EntitlementHandler{
		users:    users,
		subs:     subs,
		resolver: resolver,
		billing:  billingClient,
		logger:   logger,
	}
}

func statusResponse(st entitlement.Status) map[string]any {
	return map[string]any{
		"status":     st,
		"limits":     entitlement.LimitsFor(st.IsActive),
		"checked_at": st.CheckedAt,
	}
}

// Status returns the cached entitlement, re-fetching only when stale.
func (h *EntitlementHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	st, err := h.resolver.Refresh(userID, false)
	if err != nil {
		h.logger.Error("refresh entitlement", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to check subscription")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(st))
}

// Refresh forces a re-check, e.g. after returning from Stripe checkout.
func (h *EntitlementHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	st, err := h.resolver.Refresh(userID, true)
	if err != nil {
		h.logger.Error("force refresh entitlement", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to check subscription")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(st))
}

// StartTrial begins the 14-day premium trial. Each account gets one.
func (h *EntitlementHandler) StartTrial(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	now := time.Now()
	if _, err := h.subs.StartTrial(userID, now, now.Add(trialDuration)); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	st, err := h.resolver.Refresh(userID, true)
	if err != nil {
		h.logger.Error("refresh after trial start", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to check subscription")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(st))
}

type checkoutRequest struct {
	Interval string `json:"interval"`
}

// Checkout creates a Stripe checkout session for the premium plan,
// creating the Stripe customer on first use.
func (h *EntitlementHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	userID := auth.UserID(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sub, err := h.subs.GetByUserID(userID)
	if err != nil || sub == nil {
		h.logger.Error("get subscription", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}

	customerID := ""
	if sub.StripeCustomerID != nil {
		customerID = *sub.StripeCustomerID
	}
	if customerID == "" {
		user, err := h.users.GetByID(userID)
		if err != nil || user == nil {
			h.logger.Error("get user", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "failed to start checkout")
			return
		}
		customerID, err = h.billing.CreateCustomer(user.Email)
		if err != nil {
			h.logger.Error("create stripe customer", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "failed to start checkout")
			return
		}
		if err := h.subs.UpdateStripeCustomerID(userID, customerID); err != nil {
			h.logger.Error("save stripe customer id", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "failed to start checkout")
			return
		}
	}

	url, err := h.billing.CreateCheckoutSession(customerID, h.billing.PriceIDForInterval(req.Interval))
	if err != nil {
		h.logger.Error("create checkout session", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	ReturnURL string `json:"return_url"`
}

// Portal opens the Stripe billing portal for subscription management.
func (h *EntitlementHandler) Portal(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}
	userID := auth.UserID(r.Context())

	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sub, err := h.subs.GetByUserID(userID)
	if err != nil || sub == nil || sub.StripeCustomerID == nil {
		writeError(w, http.StatusConflict, "no billing account")
		return
	}

	url, err := h.billing.CreateBillingPortalSession(*sub.StripeCustomerID, req.ReturnURL)
	if err != nil {
		h.logger.Error("create portal session", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "failed to open billing portal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
