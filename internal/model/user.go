package model

import "time"

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Onboarding choices recorded at signup. The roster loader keys its
// empty-roster handling off these.
const (
	OnboardingCreated = "created"
	OnboardingJoined  = "joined"
	OnboardingSkipped = "skipped"
)

type Profile struct {
	UserID                  int64     `json:"user_id"`
	OnboardingCompleted     bool      `json:"onboarding_completed"`
	OnboardingChoice        string    `json:"onboarding_choice"`
	NeedsHouseholdSelection bool      `json:"needs_household_selection"`
	HasUsedTrial            bool      `json:"has_used_trial"`
	UpdatedAt               time.Time `json:"updated_at"`
}
