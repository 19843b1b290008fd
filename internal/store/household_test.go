package store

import (
	"testing"

	"github.com/larderapp/larder/internal/model"
)

func seedUser(t *testing.T, us *UserStore, email string) *model.User {
	t.Helper()
	u, err := us.Create(email, "Test User")
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func TestHouseholdCreateAndAddMember(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	h, err := hs.Create("My Kitchen", owner.ID, 5)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if h.InviteCode == "" {
		t.Error("expected invite code")
	}
	if h.MaxMembers != 5 {
		t.Errorf("max members = %d, want 5", h.MaxMembers)
	}

	m, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if !m.IsActive {
		t.Error("owner membership should be active")
	}

	found, err := hs.GetByInviteCode(h.InviteCode)
	if err != nil {
		t.Fatalf("get by invite code: %v", err)
	}
	if found == nil || found.ID != h.ID {
		t.Error("invite code lookup should return the household")
	}
}

func TestHouseholdSwitchActive(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	u := seedUser(t, us, "pat@example.com")
	first, _ := hs.Create("First", u.ID, 5)
	second, _ := hs.Create("Second", u.ID, 5)
	if _, err := hs.AddMember(first.ID, u.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := hs.AddMember(second.ID, u.ID, model.RoleOwner, false); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := hs.SwitchActive(u.ID, second.ID); err != nil {
		t.Fatalf("switch active: %v", err)
	}

	m1, _ := hs.GetMember(first.ID, u.ID)
	m2, _ := hs.GetMember(second.ID, u.ID)
	if m1.IsActive {
		t.Error("first membership should be inactive after switch")
	}
	if !m2.IsActive {
		t.Error("second membership should be active after switch")
	}

	n, err := hs.CountActiveHouseholds(u.ID)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if n != 1 {
		t.Errorf("active households = %d, want 1", n)
	}
}

func TestHouseholdSwitchActiveNotMember(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	u := seedUser(t, us, "pat@example.com")
	if err := hs.SwitchActive(u.ID, 999); err == nil {
		t.Error("expected error for unknown membership")
	}
}

func TestHouseholdDowngradeKeepsOwner(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	h, _ := hs.Create("Crowded", owner.ID, 20)
	if _, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	var memberIDs []int64
	for i := 0; i < 7; i++ {
		u := seedUser(t, us, string(rune('a'+i))+"@example.com")
		if _, err := hs.AddMember(h.ID, u.ID, model.RoleMember, true); err != nil {
			t.Fatalf("add member: %v", err)
		}
		memberIDs = append(memberIDs, u.ID)
	}

	result, err := hs.Downgrade(h.ID, 5, DeactivateNewestFirst)
	if err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	if result.MembersBefore != 8 || result.MembersAfter != 5 {
		t.Errorf("members %d -> %d, want 8 -> 5", result.MembersBefore, result.MembersAfter)
	}
	if result.MembersMadeInactive != 3 {
		t.Errorf("made inactive = %d, want 3", result.MembersMadeInactive)
	}
	if !result.MaxMembersLowered {
		t.Error("expected max_members clamp")
	}

	ownerMember, _ := hs.GetMember(h.ID, owner.ID)
	if !ownerMember.IsActive {
		t.Error("owner must stay active through a downgrade")
	}

	// Newest members (highest ids) lose their seat first.
	for i, userID := range memberIDs {
		m, _ := hs.GetMember(h.ID, userID)
		wantActive := i < 4
		if m.IsActive != wantActive {
			t.Errorf("member %d active = %v, want %v", i, m.IsActive, wantActive)
		}
	}
}

func TestHouseholdDowngradeIdempotent(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	h, _ := hs.Create("Small", owner.ID, 5)
	if _, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err := hs.Downgrade(h.ID, 5, DeactivateNewestFirst)
		if err != nil {
			t.Fatalf("downgrade run %d: %v", i+1, err)
		}
		if result.MembersMadeInactive != 0 {
			t.Errorf("run %d deactivated %d members, want 0", i+1, result.MembersMadeInactive)
		}
	}
}

func TestHouseholdReactivateRefusedAtCapacity(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	benched := seedUser(t, us, "benched@example.com")
	h, _ := hs.Create("Full", owner.ID, 1)
	if _, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if _, err := hs.AddMember(h.ID, benched.ID, model.RoleMember, false); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := hs.ReactivateMember(h.ID, benched.ID); err == nil {
		t.Error("expected capacity error")
	}

	if err := hs.UpdateMaxMembers(h.ID, 2); err != nil {
		t.Fatalf("raise capacity: %v", err)
	}
	if err := hs.ReactivateMember(h.ID, benched.ID); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	m, _ := hs.GetMember(h.ID, benched.ID)
	if !m.IsActive {
		t.Error("member should be active after reactivation")
	}
}

func TestHouseholdTransferOwnership(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	heir := seedUser(t, us, "heir@example.com")
	h, _ := hs.Create("Legacy", owner.ID, 5)
	if _, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if _, err := hs.AddMember(h.ID, heir.ID, model.RoleMember, true); err != nil {
		t.Fatalf("add member: %v", err)
	}

	if err := hs.TransferOwnership(h.ID, heir.ID); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	updated, _ := hs.GetByID(h.ID)
	if updated.OwnerID != heir.ID {
		t.Errorf("owner = %d, want %d", updated.OwnerID, heir.ID)
	}
	oldM, _ := hs.GetMember(h.ID, owner.ID)
	newM, _ := hs.GetMember(h.ID, heir.ID)
	if oldM.Role != model.RoleMember {
		t.Errorf("old owner role = %q, want %q", oldM.Role, model.RoleMember)
	}
	if newM.Role != model.RoleOwner {
		t.Errorf("new owner role = %q, want %q", newM.Role, model.RoleOwner)
	}
}

func TestHouseholdTransferToNonMember(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	stranger := seedUser(t, us, "stranger@example.com")
	h, _ := hs.Create("Legacy", owner.ID, 5)
	if _, err := hs.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}

	if err := hs.TransferOwnership(h.ID, stranger.ID); err == nil {
		t.Error("expected error transferring to a non-member")
	}
}

func TestHouseholdListActiveForUserOwnerFirst(t *testing.T) {
	db := openTestDB(t)
	us := NewUserStore(db)
	hs := NewHouseholdStore(db)

	owner := seedUser(t, us, "owner@example.com")
	other := seedUser(t, us, "other@example.com")
	joined, _ := hs.Create("Joined", other.ID, 5)
	if _, err := hs.AddMember(joined.ID, other.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := hs.AddMember(joined.ID, owner.ID, model.RoleMember, true); err != nil {
		t.Fatalf("add member: %v", err)
	}
	owned, _ := hs.Create("Owned", owner.ID, 5)
	if _, err := hs.AddMember(owned.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add member: %v", err)
	}

	roster, err := hs.ListActiveForUser(owner.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("roster length = %d, want 2", len(roster))
	}
	if roster[0].Household.ID != owned.ID {
		t.Error("owned household should sort first")
	}
}
