package reconcile

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/larderapp/larder/internal/database"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

type fixture struct {
	db         *sql.DB
	reconciler *Reconciler
	users      *store.UserStore
	profiles   *store.ProfileStore
	households *store.HouseholdStore
	notices    *store.NoticeStore
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := store.NewUserStore(db)
	profiles := store.NewProfileStore(db)
	households := store.NewHouseholdStore(db)
	notices := store.NewNoticeStore(db)
	r := NewReconciler(households, profiles, notices, store.DeactivateNewestFirst, logger)

	return &fixture{db: db, reconciler: r, users: users, profiles: profiles, households: households, notices: notices}
}

// crowdedHousehold builds a premium-sized household with the owner plus
// seven members, all active.
func (f *fixture) crowdedHousehold(t *testing.T) (*model.User, *model.Household, []int64) {
	t.Helper()
	owner, err := f.users.Create("owner@example.com", "Owner")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	h, err := f.households.Create("Big House", owner.ID, 20)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := f.households.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}

	var memberIDs []int64
	for i := 0; i < 7; i++ {
		u, err := f.users.Create(fmt.Sprintf("member%d@example.com", i), "Member")
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if _, err := f.households.AddMember(h.ID, u.ID, model.RoleMember, true); err != nil {
			t.Fatalf("add member: %v", err)
		}
		memberIDs = append(memberIDs, u.ID)
	}
	return owner, h, memberIDs
}

func TestRunDeactivatesNewestMembersFirst(t *testing.T) {
	f := setup(t)
	owner, h, memberIDs := f.crowdedHousehold(t)

	var notified []*model.DowngradeNotice
	f.reconciler.OnNotice(func(n *model.DowngradeNotice) { notified = append(notified, n) })

	res, err := f.reconciler.Run(owner.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Households) != 1 {
		t.Fatalf("households = %d, want 1", len(res.Households))
	}
	out := res.Households[0]
	if out.State != StateReconciled {
		t.Errorf("state = %s, want %s", out.State, StateReconciled)
	}
	if out.MembersBefore != 8 || out.MembersAfter != 5 || out.MembersMadeInactive != 3 {
		t.Errorf("counts = %d/%d/%d, want 8/5/3", out.MembersBefore, out.MembersAfter, out.MembersMadeInactive)
	}

	// The owner always survives.
	ownerMember, err := f.households.GetMember(h.ID, owner.ID)
	if err != nil {
		t.Fatalf("get owner member: %v", err)
	}
	if !ownerMember.IsActive {
		t.Fatal("owner was deactivated")
	}

	// Newest first: the last three joiners lose their active flag.
	for i, id := range memberIDs {
		m, err := f.households.GetMember(h.ID, id)
		if err != nil {
			t.Fatalf("get member: %v", err)
		}
		wantActive := i < 4
		if m.IsActive != wantActive {
			t.Errorf("member %d active = %v, want %v", i, m.IsActive, wantActive)
		}
	}

	// A notice row was written and delivered.
	notices, err := f.notices.ListForUser(owner.ID)
	if err != nil {
		t.Fatalf("list notices: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(notices))
	}
	n := notices[0]
	if n.HouseholdID != h.ID || n.HouseholdName != h.Name {
		t.Errorf("notice household = %d %q", n.HouseholdID, n.HouseholdName)
	}
	if n.MembersBefore != 8 || n.MembersAfter != 5 || n.MembersMadeInactive != 3 {
		t.Errorf("notice counts = %d/%d/%d", n.MembersBefore, n.MembersAfter, n.MembersMadeInactive)
	}
	if len(notified) != 1 {
		t.Fatalf("notify hook fired %d times, want 1", len(notified))
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := setup(t)
	owner, _, _ := f.crowdedHousehold(t)

	if _, err := f.reconciler.Run(owner.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := f.reconciler.Run(owner.ID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	out := res.Households[0]
	if out.State != StateCompliant {
		t.Errorf("state on re-run = %s, want %s", out.State, StateCompliant)
	}
	if out.MembersMadeInactive != 0 {
		t.Errorf("re-run deactivated %d members", out.MembersMadeInactive)
	}

	notices, err := f.notices.ListForUser(owner.ID)
	if err != nil {
		t.Fatalf("list notices: %v", err)
	}
	if len(notices) != 1 {
		t.Fatalf("re-run added a notice, count = %d", len(notices))
	}
}

func TestRunCompliantHouseholdUntouched(t *testing.T) {
	f := setup(t)
	owner, err := f.users.Create("small@example.com", "Small")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	h, err := f.households.Create("Small House", owner.ID, 5)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := f.households.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}

	res, err := f.reconciler.Run(owner.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Households[0].State != StateCompliant {
		t.Errorf("state = %s, want %s", res.Households[0].State, StateCompliant)
	}
	notices, err := f.notices.ListForUser(owner.ID)
	if err != nil {
		t.Fatalf("list notices: %v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("compliant run wrote %d notices", len(notices))
	}
}

func TestRunClampsMaxMembersWithoutNotice(t *testing.T) {
	f := setup(t)
	owner, err := f.users.Create("cap@example.com", "Cap")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	// Premium-sized capacity but only the owner inside. The cap comes
	// down silently; nobody was deactivated so nobody is notified.
	h, err := f.households.Create("Roomy", owner.ID, 20)
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if _, err := f.households.AddMember(h.ID, owner.ID, model.RoleOwner, true); err != nil {
		t.Fatalf("add owner: %v", err)
	}

	if _, err := f.reconciler.Run(owner.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := f.households.GetByID(h.ID)
	if err != nil {
		t.Fatalf("get household: %v", err)
	}
	if got.MaxMembers != 5 {
		t.Errorf("max members = %d, want 5", got.MaxMembers)
	}
	notices, err := f.notices.ListForUser(owner.ID)
	if err != nil {
		t.Fatalf("list notices: %v", err)
	}
	if len(notices) != 0 {
		t.Fatalf("clamp-only run wrote %d notices", len(notices))
	}
}

func TestRunFlagsMultipleActiveHouseholds(t *testing.T) {
	f := setup(t)

	host, err := f.users.Create("host@example.com", "Host")
	if err != nil {
		t.Fatalf("create host: %v", err)
	}
	u, err := f.users.Create("multi@example.com", "Multi")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for i := 0; i < 2; i++ {
		h, err := f.households.Create(fmt.Sprintf("House %d", i), host.ID, 5)
		if err != nil {
			t.Fatalf("create household: %v", err)
		}
		if _, err := f.households.AddMember(h.ID, host.ID, model.RoleOwner, true); err != nil {
			t.Fatalf("add host: %v", err)
		}
		if _, err := f.households.AddMember(h.ID, u.ID, model.RoleMember, true); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}

	res, err := f.reconciler.Run(u.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.SelectionRequired {
		t.Fatal("expected selection flag for a user active in two households")
	}

	profile, err := f.profiles.Get(u.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !profile.NeedsHouseholdSelection {
		t.Fatal("profile flag not set")
	}

	// Neither membership is auto-deactivated; the choice is the user's.
	if n, err := f.households.CountActiveHouseholds(u.ID); err != nil || n != 2 {
		t.Fatalf("active households = %d (err %v), want 2", n, err)
	}
}

func TestCheck(t *testing.T) {
	f := setup(t)
	owner, h, _ := f.crowdedHousehold(t)

	state, active, err := f.reconciler.Check(h.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state != StateOverCapacity || active != 8 {
		t.Fatalf("check = (%s, %d), want (%s, 8)", state, active, StateOverCapacity)
	}

	if _, err := f.reconciler.Run(owner.ID); err != nil {
		t.Fatalf("run: %v", err)
	}

	state, active, err = f.reconciler.Check(h.ID)
	if err != nil {
		t.Fatalf("check after run: %v", err)
	}
	if state != StateCompliant || active != 5 {
		t.Fatalf("check after run = (%s, %d), want (%s, 5)", state, active, StateCompliant)
	}
}
