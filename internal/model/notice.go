package model

import "time"

// DowngradeNotice records that a reconciliation run deactivated members in
// one of the user's households. Each notice is dismissed individually.
type DowngradeNotice struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"user_id"`
	HouseholdID         int64     `json:"household_id"`
	HouseholdName       string    `json:"household_name"`
	MembersBefore       int       `json:"members_before"`
	MembersAfter        int       `json:"members_after"`
	MembersMadeInactive int       `json:"members_made_inactive"`
	CreatedAt           time.Time `json:"created_at"`
}
