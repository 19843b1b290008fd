package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/larderapp/larder/internal/model"
)

// DeactivationOrder controls which members lose their active flag first
// when a household is forced under capacity.
type DeactivationOrder string

const (
	DeactivateNewestFirst DeactivationOrder = "newest_first"
	DeactivateOldestFirst DeactivationOrder = "oldest_first"
)

// DowngradeResult reports what a Downgrade call changed.
type DowngradeResult struct {
	MembersBefore       int
	MembersAfter        int
	MembersMadeInactive int
	MaxMembersLowered   bool
}

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.InviteCode, &h.OwnerID, &h.MaxMembers, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseholdMember(scanner interface{ Scan(...any) error }) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	var active int
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &active, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.IsActive = active != 0
	return &m, nil
}

const householdCols = `id, name, invite_code, owner_id, max_members, created_at, updated_at`
const householdMemberCols = `id, household_id, user_id, role, is_active, joined_at, updated_at`

func newInviteCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Create inserts a household row only. Membership is a separate write so the
// caller can apply its compensating policy when the second write fails.
func (s *HouseholdStore) Create(name string, ownerID int64, maxMembers int) (*model.Household, error) {
	result, err := s.db.Exec(
		`INSERT INTO households (name, invite_code, owner_id, max_members) VALUES (?, ?, ?, ?)`,
		name, newInviteCode(), ownerID, maxMembers,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) GetByInviteCode(code string) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE invite_code = ?`, strings.ToUpper(strings.TrimSpace(code)))
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household by invite code: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) UpdateSettings(id int64, name string) (*model.Household, error) {
	_, err := s.db.Exec(
		`UPDATE households SET name = ?, updated_at = datetime('now') WHERE id = ?`,
		name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update household settings: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) UpdateMaxMembers(id int64, maxMembers int) error {
	_, err := s.db.Exec(
		`UPDATE households SET max_members = ?, updated_at = datetime('now') WHERE id = ?`,
		maxMembers, id,
	)
	if err != nil {
		return fmt.Errorf("update max members: %w", err)
	}
	return nil
}

func (s *HouseholdStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM households WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return nil
}

func (s *HouseholdStore) AddMember(householdID, userID int64, role string, isActive bool) (*model.HouseholdMember, error) {
	active := 0
	if isActive {
		active = 1
	}
	result, err := s.db.Exec(
		`INSERT INTO household_members (household_id, user_id, role, is_active) VALUES (?, ?, ?, ?)`,
		householdID, userID, role, active,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+householdMemberCols+` FROM household_members WHERE id = ?`, id)
	return scanHouseholdMember(row)
}

func (s *HouseholdStore) GetMember(householdID, userID int64) (*model.HouseholdMember, error) {
	row := s.db.QueryRow(
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanHouseholdMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *HouseholdStore) RemoveMember(householdID, userID int64) error {
	_, err := s.db.Exec(
		`DELETE FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// ReactivateMember sets a member's active flag, refusing when the household
// is already at capacity.
func (s *HouseholdStore) ReactivateMember(householdID, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxMembers, activeCount int
	err = tx.QueryRow(`SELECT max_members FROM households WHERE id = ?`, householdID).Scan(&maxMembers)
	if err != nil {
		return fmt.Errorf("get max members: %w", err)
	}
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND is_active = 1`,
		householdID,
	).Scan(&activeCount)
	if err != nil {
		return fmt.Errorf("count active members: %w", err)
	}
	if activeCount >= maxMembers {
		return fmt.Errorf("household %d is at member capacity (%d)", householdID, maxMembers)
	}

	res, err := tx.Exec(
		`UPDATE household_members SET is_active = 1, updated_at = datetime('now')
		 WHERE household_id = ? AND user_id = ? AND is_active = 0`,
		householdID, userID,
	)
	if err != nil {
		return fmt.Errorf("reactivate member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member not found or already active")
	}

	return tx.Commit()
}

func (s *HouseholdStore) ListMembers(householdID int64) ([]model.HouseholdMember, error) {
	rows, err := s.db.Query(
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? ORDER BY joined_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		m, err := scanHouseholdMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *HouseholdStore) CountActiveMembers(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND is_active = 1`,
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return n, nil
}

// ListActiveForUser returns the caller's roster: active memberships joined
// with household details, owner rows first.
func (s *HouseholdStore) ListActiveForUser(userID int64) ([]model.Membership, error) {
	rows, err := s.db.Query(
		`SELECT h.id, h.name, h.invite_code, h.owner_id, h.max_members, h.created_at, h.updated_at,
		        m.id, m.household_id, m.user_id, m.role, m.is_active, m.joined_at, m.updated_at
		 FROM households h
		 JOIN household_members m ON h.id = m.household_id
		 WHERE m.user_id = ? AND m.is_active = 1
		 ORDER BY (m.role = 'owner') DESC, m.joined_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active households: %w", err)
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		var ms model.Membership
		var active int
		err := rows.Scan(
			&ms.Household.ID, &ms.Household.Name, &ms.Household.InviteCode,
			&ms.Household.OwnerID, &ms.Household.MaxMembers,
			&ms.Household.CreatedAt, &ms.Household.UpdatedAt,
			&ms.Member.ID, &ms.Member.HouseholdID, &ms.Member.UserID,
			&ms.Member.Role, &active, &ms.Member.JoinedAt, &ms.Member.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ms.Member.IsActive = active != 0
		memberships = append(memberships, ms)
	}
	return memberships, rows.Err()
}

func (s *HouseholdStore) ListOwnedBy(ownerID int64) ([]model.Household, error) {
	rows, err := s.db.Query(
		`SELECT `+householdCols+` FROM households WHERE owner_id = ? ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list owned households: %w", err)
	}
	defer rows.Close()

	var households []model.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		households = append(households, *h)
	}
	return households, rows.Err()
}

func (s *HouseholdStore) CountActiveHouseholds(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM household_members WHERE user_id = ? AND is_active = 1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active households: %w", err)
	}
	return n, nil
}

// SwitchActive atomically makes the given household the user's only active
// one. The membership must already exist.
func (s *HouseholdStore) SwitchActive(userID, householdID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var memberID int64
	err = tx.QueryRow(
		`SELECT id FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	).Scan(&memberID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("not a member of household %d", householdID)
	}
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE household_members SET is_active = 0, updated_at = datetime('now')
		 WHERE user_id = ? AND is_active = 1 AND household_id != ?`,
		userID, householdID,
	); err != nil {
		return fmt.Errorf("deactivate other memberships: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE household_members SET is_active = 1, updated_at = datetime('now') WHERE id = ?`,
		memberID,
	); err != nil {
		return fmt.Errorf("activate membership: %w", err)
	}

	return tx.Commit()
}

// Downgrade forces a household under the given member capacity in a single
// transaction: max_members is clamped, then excess active members are
// deactivated in the given order. The owner is never deactivated. Calling
// it on an already-compliant household is a no-op.
func (s *HouseholdStore) Downgrade(householdID int64, maxMembers int, order DeactivationOrder) (*DowngradeResult, error) {
	orderClause := "m.joined_at DESC, m.id DESC"
	if order == DeactivateOldestFirst {
		orderClause = "m.joined_at ASC, m.id ASC"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ownerID int64
	var currentMax int
	err = tx.QueryRow(`SELECT owner_id, max_members FROM households WHERE id = ?`, householdID).Scan(&ownerID, &currentMax)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("household %d not found", householdID)
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}

	result := &DowngradeResult{}
	if currentMax > maxMembers {
		if _, err := tx.Exec(
			`UPDATE households SET max_members = ?, updated_at = datetime('now') WHERE id = ?`,
			maxMembers, householdID,
		); err != nil {
			return nil, fmt.Errorf("clamp max members: %w", err)
		}
		result.MaxMembersLowered = true
	}

	var before int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND is_active = 1`,
		householdID,
	).Scan(&before)
	if err != nil {
		return nil, fmt.Errorf("count active members: %w", err)
	}
	result.MembersBefore = before
	result.MembersAfter = before

	if before > maxMembers {
		excess := before - maxMembers
		res, err := tx.Exec(
			`UPDATE household_members SET is_active = 0, updated_at = datetime('now')
			 WHERE id IN (
			   SELECT m.id FROM household_members m
			   WHERE m.household_id = ? AND m.is_active = 1 AND m.user_id != ?
			   ORDER BY `+orderClause+`
			   LIMIT ?
			 )`,
			householdID, ownerID, excess,
		)
		if err != nil {
			return nil, fmt.Errorf("deactivate excess members: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		result.MembersMadeInactive = int(n)
		result.MembersAfter = before - int(n)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit downgrade: %w", err)
	}
	return result, nil
}

// DowngradeStatus reports whether a household currently exceeds the given
// member capacity.
func (s *HouseholdStore) DowngradeStatus(householdID int64, maxMembers int) (overCapacity bool, activeMembers int, err error) {
	h, err := s.GetByID(householdID)
	if err != nil {
		return false, 0, err
	}
	if h == nil {
		return false, 0, fmt.Errorf("household %d not found", householdID)
	}
	activeMembers, err = s.CountActiveMembers(householdID)
	if err != nil {
		return false, 0, err
	}
	return h.MaxMembers > maxMembers || activeMembers > maxMembers, activeMembers, nil
}

// TransferOwnership moves a household to a new owner. The new owner must
// already be a member; roles on both member rows are updated in one
// transaction.
func (s *HouseholdStore) TransferOwnership(householdID, newOwnerID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldOwnerID int64
	err = tx.QueryRow(`SELECT owner_id FROM households WHERE id = ?`, householdID).Scan(&oldOwnerID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("household %d not found", householdID)
	}
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}

	var memberID int64
	err = tx.QueryRow(
		`SELECT id FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, newOwnerID,
	).Scan(&memberID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("new owner is not a member of household %d", householdID)
	}
	if err != nil {
		return fmt.Errorf("check new owner membership: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE households SET owner_id = ?, updated_at = datetime('now') WHERE id = ?`,
		newOwnerID, householdID,
	); err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE household_members SET role = 'member', updated_at = datetime('now')
		 WHERE household_id = ? AND user_id = ?`,
		householdID, oldOwnerID,
	); err != nil {
		return fmt.Errorf("demote old owner: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE household_members SET role = 'owner', updated_at = datetime('now') WHERE id = ?`,
		memberID,
	); err != nil {
		return fmt.Errorf("promote new owner: %w", err)
	}

	return tx.Commit()
}
