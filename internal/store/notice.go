package store

import (
	"database/sql"
	"fmt"

	"github.com/larderapp/larder/internal/model"
)

// NoticeStore persists downgrade notices as individual rows so dismissal is
// a per-row delete rather than a whole-document overwrite.
type NoticeStore struct {
	db *sql.DB
}

func NewNoticeStore(db *sql.DB) *NoticeStore {
	return &NoticeStore{db: db}
}

const noticeCols = `id, user_id, household_id, household_name, members_before, members_after, members_made_inactive, created_at`

func scanNotice(scanner interface{ Scan(...any) error }) (*model.DowngradeNotice, error) {
	var n model.DowngradeNotice
	err := scanner.Scan(
		&n.ID, &n.UserID, &n.HouseholdID, &n.HouseholdName,
		&n.MembersBefore, &n.MembersAfter, &n.MembersMadeInactive, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NoticeStore) Create(userID, householdID int64, householdName string, before, after, madeInactive int) (*model.DowngradeNotice, error) {
	result, err := s.db.Exec(
		`INSERT INTO downgrade_notices (user_id, household_id, household_name, members_before, members_after, members_made_inactive)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, householdID, householdName, before, after, madeInactive,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notice: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+noticeCols+` FROM downgrade_notices WHERE id = ?`, id)
	return scanNotice(row)
}

func (s *NoticeStore) ListForUser(userID int64) ([]model.DowngradeNotice, error) {
	rows, err := s.db.Query(
		`SELECT `+noticeCols+` FROM downgrade_notices WHERE user_id = ? ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var notices []model.DowngradeNotice
	for rows.Next() {
		n, err := scanNotice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, *n)
	}
	return notices, rows.Err()
}

// Dismiss deletes a single notice, scoped to the owning user.
func (s *NoticeStore) Dismiss(id, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM downgrade_notices WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("dismiss notice: %w", err)
	}
	return nil
}
