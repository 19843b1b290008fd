package billing

import (
	"encoding/json"
	"fmt"
	"log/slog"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

// Processor maps Stripe webhook events onto local subscription state.
// Premium-to-free edge detection lives in the entitlement resolver; this
// only rewrites rows and asks for a refresh.
type Processor struct {
	subs    *store.SubscriptionStore
	logger  *slog.Logger
	refresh func(userID int64)
}

// NewProcessor builds a webhook processor. refresh is called with the
// affected user after every state change; pass the entitlement resolver's
// forced refresh there.
func NewProcessor(subs *store.SubscriptionStore, logger *slog.Logger, refresh func(userID int64)) *Processor {
	return &Processor{subs: subs, logger: logger, refresh: refresh}
}

// Process handles one verified event. Unrecognized event types are ignored.
func (p *Processor) Process(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(event)
	case "customer.subscription.updated":
		return p.handleSubscriptionUpdated(event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(event)
	case "invoice.payment_failed":
		return p.handlePaymentFailed(event)
	default:
		p.logger.Debug("ignoring stripe event", "type", event.Type)
		return nil
	}
}

func (p *Processor) handleCheckoutCompleted(event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}
	if sess.Customer == nil {
		return fmt.Errorf("checkout session %s has no customer", sess.ID)
	}

	sub, err := p.subs.GetByStripeCustomerID(sess.Customer.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.logger.Warn("checkout completed for unknown customer", "customer_id", sess.Customer.ID)
		return nil
	}

	if sess.Subscription != nil {
		if err := p.subs.UpdateStripeSubscriptionID(sub.UserID, sess.Subscription.ID); err != nil {
			return err
		}
	}
	if err := p.subs.UpdateStatus(sub.UserID, model.SubscriptionActive); err != nil {
		return err
	}
	p.logger.Info("subscription activated", "user_id", sub.UserID)
	p.refresh(sub.UserID)
	return nil
}

func (p *Processor) handleSubscriptionUpdated(event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	sub, err := p.subs.GetByStripeID(stripeSub.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		p.logger.Warn("update for unknown subscription", "stripe_subscription_id", stripeSub.ID)
		return nil
	}

	status := mapStripeStatus(stripeSub.Status)
	if err := p.subs.UpdateStatus(sub.UserID, status); err != nil {
		return err
	}
	p.logger.Info("subscription updated", "user_id", sub.UserID, "status", status)
	p.refresh(sub.UserID)
	return nil
}

func (p *Processor) handleSubscriptionDeleted(event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	sub, err := p.subs.GetByStripeID(stripeSub.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if err := p.subs.UpdateStatus(sub.UserID, model.SubscriptionCanceled); err != nil {
		return err
	}
	p.logger.Info("subscription canceled", "user_id", sub.UserID)
	p.refresh(sub.UserID)
	return nil
}

func (p *Processor) handlePaymentFailed(event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("parse invoice: %w", err)
	}
	if invoice.Customer == nil {
		return nil
	}

	sub, err := p.subs.GetByStripeCustomerID(invoice.Customer.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if err := p.subs.UpdateStatus(sub.UserID, model.SubscriptionPastDue); err != nil {
		return err
	}
	p.logger.Warn("subscription payment failed", "user_id", sub.UserID)
	p.refresh(sub.UserID)
	return nil
}

func mapStripeStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive:
		return model.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return model.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.SubscriptionCanceled
	default:
		return model.SubscriptionFree
	}
}
