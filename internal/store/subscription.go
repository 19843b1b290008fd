package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/larderapp/larder/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var custID, subID sql.NullString
	var trialStart, trialEnd sql.NullTime
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &custID, &subID, &sub.Status,
		&trialStart, &trialEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if custID.Valid {
		sub.StripeCustomerID = &custID.String
	}
	if subID.Valid {
		sub.StripeSubscriptionID = &subID.String
	}
	if trialStart.Valid {
		sub.TrialStart = &trialStart.Time
	}
	if trialEnd.Valid {
		sub.TrialEnd = &trialEnd.Time
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, stripe_customer_id, stripe_subscription_id, status, trial_start, trial_end, created_at, updated_at`

func (s *SubscriptionStore) GetByUserID(userID int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`,
		stripeSubID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeCustomerID(customerID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_customer_id = ?`,
		customerID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by customer id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) UpdateStatus(userID int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, updated_at = datetime('now') WHERE user_id = ?`,
		status, userID,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateStripeCustomerID(userID int64, customerID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET stripe_customer_id = ?, updated_at = datetime('now') WHERE user_id = ?`,
		customerID, userID,
	)
	if err != nil {
		return fmt.Errorf("update stripe customer id: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateStripeSubscriptionID(userID int64, stripeSubID string) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET stripe_subscription_id = ?, updated_at = datetime('now') WHERE user_id = ?`,
		stripeSubID, userID,
	)
	if err != nil {
		return fmt.Errorf("update stripe subscription id: %w", err)
	}
	return nil
}

// StartTrial begins the one-per-user trial window. It fails if the profile
// already records a used trial.
func (s *SubscriptionStore) StartTrial(userID int64, start, end time.Time) (*model.Subscription, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var used int
	err = tx.QueryRow(`SELECT has_used_trial FROM profiles WHERE user_id = ?`, userID).Scan(&used)
	if err != nil {
		return nil, fmt.Errorf("check trial eligibility: %w", err)
	}
	if used != 0 {
		return nil, fmt.Errorf("trial already used")
	}

	if _, err := tx.Exec(
		`UPDATE subscriptions SET status = 'trialing', trial_start = ?, trial_end = ?, updated_at = datetime('now')
		 WHERE user_id = ?`,
		start.UTC(), end.UTC(), userID,
	); err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE profiles SET has_used_trial = 1, updated_at = datetime('now') WHERE user_id = ?`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("mark trial used: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByUserID(userID)
}
