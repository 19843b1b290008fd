package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/larderapp/larder/internal/billing"
)

// webhookMaxBody caps request bodies per Stripe's recommendation.
const webhookMaxBody = 65536

type WebhookHandler struct {
	billing   *billing.Client
	processor *billing.Processor
	logger    *slog.Logger
}

func NewWebhookHandler(billingClient *billing.Client, processor *billing.Processor, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{billing: billingClient, processor: processor, logger: logger}
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := h.billing.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.processor.Process(event); err != nil {
		h.logger.Error("process stripe event", "error", err, "type", event.Type)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
