package store

import (
	"database/sql"
	"fmt"

	"github.com/larderapp/larder/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileCols = `user_id, onboarding_completed, onboarding_choice, needs_household_selection, has_used_trial, updated_at`

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var completed, needsSelection, usedTrial int
	err := scanner.Scan(&p.UserID, &completed, &p.OnboardingChoice, &needsSelection, &usedTrial, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.OnboardingCompleted = completed != 0
	p.NeedsHouseholdSelection = needsSelection != 0
	p.HasUsedTrial = usedTrial != 0
	return &p, nil
}

func (s *ProfileStore) Get(userID int64) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) SetOnboarding(userID int64, completed bool, choice string) error {
	c := 0
	if completed {
		c = 1
	}
	_, err := s.db.Exec(
		`UPDATE profiles SET onboarding_completed = ?, onboarding_choice = ?, updated_at = datetime('now') WHERE user_id = ?`,
		c, choice, userID,
	)
	if err != nil {
		return fmt.Errorf("set onboarding: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetNeedsHouseholdSelection(userID int64, needs bool) error {
	n := 0
	if needs {
		n = 1
	}
	_, err := s.db.Exec(
		`UPDATE profiles SET needs_household_selection = ?, updated_at = datetime('now') WHERE user_id = ?`,
		n, userID,
	)
	if err != nil {
		return fmt.Errorf("set needs household selection: %w", err)
	}
	return nil
}

func (s *ProfileStore) MarkTrialUsed(userID int64) error {
	_, err := s.db.Exec(
		`UPDATE profiles SET has_used_trial = 1, updated_at = datetime('now') WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("mark trial used: %w", err)
	}
	return nil
}
