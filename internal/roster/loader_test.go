package roster

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/larderapp/larder/internal/database"
	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

type fixture struct {
	db         *sql.DB
	loader     *Loader
	users      *store.UserStore
	profiles   *store.ProfileStore
	subs       *store.SubscriptionStore
	households *store.HouseholdStore
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
	subs := store.NewSubscriptionStore(db)
	households := store.NewHouseholdStore(db)
	resolver := entitlement.NewResolver(subs, households, logger)

	// Millisecond delays keep the retry path fast under test.
	loader := NewLoader(households, profiles, resolver, logger,
		WithRetrySchedule([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}))

	return &fixture{db: db, loader: loader, users: users, profiles: profiles, subs: subs, households: households}
}

func (f *fixture) newUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := f.users.Create(email, "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestLoadSelectsFirstHousehold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.newUser(t, "pat@example.com")

	h, err := f.loader.CreateHousehold(ctx, u.ID, "Home")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}

	res, err := f.loader.Load(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Memberships) != 1 {
		t.Fatalf("memberships = %d, want 1", len(res.Memberships))
	}
	if res.Selected == nil || res.Selected.Household.ID != h.ID {
		t.Fatalf("selected = %+v, want household %d", res.Selected, h.ID)
	}
	if res.CreatedDefault {
		t.Fatal("nothing should have been provisioned")
	}
}

func TestLoadKeepsPreviousSelection(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := f.newUser(t, "owner@example.com")
	if err := f.subs.UpdateStatus(owner.ID, model.SubscriptionActive); err != nil {
		t.Fatalf("update status: %v", err)
	}

	if _, err := f.loader.CreateHousehold(ctx, owner.ID, "First"); err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := f.loader.CreateHousehold(ctx, owner.ID, "Second")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	res, err := f.loader.Load(ctx, owner.ID, second.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Memberships) != 2 {
		t.Fatalf("memberships = %d, want 2", len(res.Memberships))
	}
	if res.Selected.Household.ID != second.ID {
		t.Fatalf("selected household = %d, want %d", res.Selected.Household.ID, second.ID)
	}
}

func TestLoadMidOnboardingDoesNotProvision(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.newUser(t, "new@example.com")

	res, err := f.loader.Load(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(res.Memberships) != 0 || res.CreatedDefault {
		t.Fatalf("expected empty roster with no provisioning, got %+v", res)
	}

	owned, err := f.households.ListOwnedBy(u.ID)
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if len(owned) != 0 {
		t.Fatal("a mid-onboarding user must not get a default household")
	}
}

func TestLoadSkippedOnboardingProvisionsDefault(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.newUser(t, "skip@example.com")

	if err := f.profiles.SetOnboarding(u.ID, true, model.OnboardingSkipped); err != nil {
		t.Fatalf("set onboarding: %v", err)
	}

	res, err := f.loader.Load(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.CreatedDefault {
		t.Fatal("expected a default household")
	}
	if len(res.Memberships) != 1 {
		t.Fatalf("memberships = %d, want 1", len(res.Memberships))
	}
	h := res.Selected.Household
	if h.Name != DefaultHouseholdName {
		t.Errorf("name = %q, want %q", h.Name, DefaultHouseholdName)
	}
	if h.MaxMembers != 5 {
		t.Errorf("free-tier default household max members = %d, want 5", h.MaxMembers)
	}
	if res.Selected.Member.Role != model.RoleOwner || !res.Selected.Member.IsActive {
		t.Errorf("owner membership = %+v", res.Selected.Member)
	}
}

func TestLoadRetriesThenFallsBack(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.newUser(t, "lost@example.com")

	// Onboarding says a household was created, but no membership exists.
	if err := f.profiles.SetOnboarding(u.ID, true, model.OnboardingCreated); err != nil {
		t.Fatalf("set onboarding: %v", err)
	}

	res, err := f.loader.Load(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.CreatedDefault {
		t.Fatal("expected fallback default household after retries")
	}
	if len(res.Memberships) != 1 || res.Selected.Household.Name != DefaultHouseholdName {
		t.Fatalf("unexpected roster: %+v", res)
	}
}

func TestScheduleBackoff(t *testing.T) {
	b := &scheduleBackoff{delays: []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	for i, w := range want {
		d, stop := b.Next()
		if stop || d != w {
			t.Fatalf("step %d = (%v, %v), want (%v, false)", i, d, stop, w)
		}
	}
	if _, stop := b.Next(); !stop {
		t.Fatal("backoff should stop after the schedule is exhausted")
	}
}

func TestCreateHouseholdCompensatesFailedMembership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	u := f.newUser(t, "orphan@example.com")

	// Force the membership insert to fail after the household insert
	// succeeds; the orphan row must be cleaned up.
	if _, err := f.db.Exec(`DROP TABLE household_members`); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if _, err := f.loader.CreateHousehold(ctx, u.ID, "Doomed"); err == nil {
		t.Fatal("expected create to fail")
	}

	var count int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM households`).Scan(&count); err != nil {
		t.Fatalf("count households: %v", err)
	}
	if count != 0 {
		t.Fatalf("orphan household left behind, count = %d", count)
	}
}

func TestJoinByInviteCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := f.newUser(t, "host@example.com")
	joiner := f.newUser(t, "guest@example.com")

	h, err := f.loader.CreateHousehold(ctx, owner.ID, "Shared")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}

	joined, err := f.loader.Join(ctx, joiner.ID, h.InviteCode)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.ID != h.ID {
		t.Fatalf("joined household %d, want %d", joined.ID, h.ID)
	}

	m, err := f.households.GetMember(h.ID, joiner.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil || m.Role != model.RoleMember || !m.IsActive {
		t.Fatalf("member = %+v", m)
	}

	// Joining twice is a no-op.
	if _, err := f.loader.Join(ctx, joiner.ID, h.InviteCode); err != nil {
		t.Fatalf("second join: %v", err)
	}
}

func TestJoinRefusesFullHousehold(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := f.newUser(t, "full@example.com")
	joiner := f.newUser(t, "late@example.com")

	h, err := f.loader.CreateHousehold(ctx, owner.ID, "Tiny")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	if err := f.households.UpdateMaxMembers(h.ID, 1); err != nil {
		t.Fatalf("update max members: %v", err)
	}

	if _, err := f.loader.Join(ctx, joiner.ID, h.InviteCode); err == nil {
		t.Fatal("expected join to fail against a full household")
	}
}

func TestJoinBeyondActiveCapIsInactive(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	host := f.newUser(t, "premium-host@example.com")
	if err := f.subs.UpdateStatus(host.ID, model.SubscriptionActive); err != nil {
		t.Fatalf("update status: %v", err)
	}
	freeUser := f.newUser(t, "busy@example.com")

	// The free user is already active in their own household.
	if _, err := f.loader.CreateHousehold(ctx, freeUser.ID, "Own Place"); err != nil {
		t.Fatalf("create household: %v", err)
	}

	h, err := f.loader.CreateHousehold(ctx, host.ID, "Party House")
	if err != nil {
		t.Fatalf("create host household: %v", err)
	}

	if _, err := f.loader.Join(ctx, freeUser.ID, h.InviteCode); err != nil {
		t.Fatalf("join: %v", err)
	}
	m, err := f.households.GetMember(h.ID, freeUser.ID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m == nil || m.IsActive {
		t.Fatalf("membership past the active cap should start inactive, got %+v", m)
	}
}
