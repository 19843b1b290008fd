package model

import "time"

const (
	SubscriptionFree     = "free"
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionCanceled = "canceled"
	SubscriptionPastDue  = "past_due"
)

type Subscription struct {
	ID                   int64      `json:"id"`
	UserID               int64      `json:"user_id"`
	StripeCustomerID     *string    `json:"-"`
	StripeSubscriptionID *string    `json:"-"`
	Status               string     `json:"status"`
	TrialStart           *time.Time `json:"trial_start"`
	TrialEnd             *time.Time `json:"trial_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
