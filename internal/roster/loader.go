package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

// DefaultHouseholdName is used for auto-provisioned households.
const DefaultHouseholdName = "My Kitchen"

// defaultRetrySchedule paces the roster re-checks while a freshly created
// or joined membership settles. Linear, not exponential: the row is
// expected within seconds or not at all.
var defaultRetrySchedule = []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}

// LoadResult is what the app boots from.
type LoadResult struct {
	Memberships    []model.Membership `json:"memberships"`
	Selected       *model.Membership  `json:"selected"`
	CreatedDefault bool               `json:"created_default"`
}

// Loader assembles a user's household roster on session start. An empty
// roster is not always an error: mid-onboarding users legitimately have no
// household yet, so the loader inspects onboarding state before provisioning
// a default one.
type Loader struct {
	households *store.HouseholdStore
	profiles   *store.ProfileStore
	resolver   *entitlement.Resolver
	logger     *slog.Logger

	schedule []time.Duration

	mu      sync.Mutex
	loading map[int64]bool
}

type Option func(*Loader)

// WithRetrySchedule overrides the roster re-check delays.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(l *Loader) { l.schedule = schedule }
}

func NewLoader(households *store.HouseholdStore, profiles *store.ProfileStore, resolver *entitlement.Resolver, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		households: households,
		profiles:   profiles,
		resolver:   resolver,
		logger:     logger,
		schedule:   defaultRetrySchedule,
		loading:    make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// scheduleBackoff walks a fixed delay list, then stops.
type scheduleBackoff struct {
	delays []time.Duration
	i      int
}

func (b *scheduleBackoff) Next() (time.Duration, bool) {
	if b.i >= len(b.delays) {
		return 0, true
	}
	d := b.delays[b.i]
	b.i++
	return d, false
}

// Load returns the user's roster and picks the selected household. A
// previously selected household that is still on the roster wins; otherwise
// the first entry (owner rows sort first) is selected. Overlapping loads for
// the same user collapse to a single plain fetch.
//
// Fetch failures fail open to an empty roster so the app still boots;
// nothing is provisioned on that path.
func (l *Loader) Load(ctx context.Context, userID, selectedHouseholdID int64) (*LoadResult, error) {
	l.mu.Lock()
	if l.loading[userID] {
		l.mu.Unlock()
		return l.fetch(userID, selectedHouseholdID), nil
	}
	l.loading[userID] = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.loading, userID)
		l.mu.Unlock()
	}()

	if res := l.fetch(userID, selectedHouseholdID); len(res.Memberships) > 0 {
		return res, nil
	}

	profile, err := l.profiles.Get(userID)
	if err != nil {
		l.logger.Error("load profile for roster", "user_id", userID, "error", err)
		return &LoadResult{}, nil
	}
	if profile == nil || !profile.OnboardingCompleted || profile.OnboardingChoice == "" {
		// Mid-onboarding. The empty roster is expected; provisioning
		// here would race the onboarding flow.
		return &LoadResult{}, nil
	}

	switch profile.OnboardingChoice {
	case model.OnboardingSkipped:
		return l.provisionDefault(ctx, userID, selectedHouseholdID)
	case model.OnboardingCreated, model.OnboardingJoined:
		// Onboarding says a household should exist. Give the membership
		// write time to land before concluding it is lost.
		if res := l.waitForRoster(ctx, userID, selectedHouseholdID); len(res.Memberships) > 0 {
			return res, nil
		}
		l.logger.Warn("roster still empty after onboarding, provisioning default",
			"user_id", userID, "onboarding_choice", profile.OnboardingChoice)
		return l.provisionDefault(ctx, userID, selectedHouseholdID)
	default:
		l.logger.Warn("unknown onboarding choice", "user_id", userID, "choice", profile.OnboardingChoice)
		return &LoadResult{}, nil
	}
}

func (l *Loader) fetch(userID, selectedHouseholdID int64) *LoadResult {
	memberships, err := l.households.ListActiveForUser(userID)
	if err != nil {
		l.logger.Error("list active households", "user_id", userID, "error", err)
		return &LoadResult{}
	}
	res := &LoadResult{Memberships: memberships}
	if len(memberships) == 0 {
		return res
	}
	res.Selected = &memberships[0]
	for i := range memberships {
		if memberships[i].Household.ID == selectedHouseholdID {
			res.Selected = &memberships[i]
			break
		}
	}
	return res
}

func (l *Loader) waitForRoster(ctx context.Context, userID, selectedHouseholdID int64) *LoadResult {
	res := &LoadResult{}
	err := retry.Do(ctx, &scheduleBackoff{delays: l.schedule}, func(ctx context.Context) error {
		if r := l.fetch(userID, selectedHouseholdID); len(r.Memberships) > 0 {
			res = r
			return nil
		}
		return retry.RetryableError(fmt.Errorf("roster empty for user %d", userID))
	})
	if err != nil {
		l.logger.Warn("roster retries exhausted", "user_id", userID, "error", err)
	}
	return res
}

func (l *Loader) provisionDefault(ctx context.Context, userID, selectedHouseholdID int64) (*LoadResult, error) {
	if _, err := l.CreateHousehold(ctx, userID, DefaultHouseholdName); err != nil {
		l.logger.Error("provision default household", "user_id", userID, "error", err)
		return &LoadResult{}, nil
	}
	res := l.fetch(userID, selectedHouseholdID)
	res.CreatedDefault = true
	return res, nil
}

// CreateHousehold creates a household owned by the user, sized by the
// owner's entitlement. The membership insert is a second write; when it
// fails the orphan household row is deleted so a half-created household is
// never left behind. The new membership is active only while the user is
// under their active-household cap.
func (l *Loader) CreateHousehold(ctx context.Context, userID int64, name string) (*model.Household, error) {
	limits := l.resolver.Limits(userID)

	activeCount, err := l.households.CountActiveHouseholds(userID)
	if err != nil {
		return nil, fmt.Errorf("count active households: %w", err)
	}

	h, err := l.households.Create(name, userID, limits.MaxHouseholdMembers)
	if err != nil {
		return nil, fmt.Errorf("create household: %w", err)
	}

	isActive := activeCount < limits.MaxActiveHouseholds
	if _, err := l.households.AddMember(h.ID, userID, model.RoleOwner, isActive); err != nil {
		if delErr := l.households.Delete(h.ID); delErr != nil {
			l.logger.Error("delete orphan household", "household_id", h.ID, "error", delErr)
		}
		return nil, fmt.Errorf("add owner membership: %w", err)
	}

	l.logger.Info("household created", "household_id", h.ID, "owner_id", userID, "active", isActive)
	return h, nil
}

// Join adds the user to the household behind an invite code. The new member
// row is active only when the household has active-member headroom and the
// user is under their own active-household cap; otherwise it is created
// inactive and the user can switch to it later.
func (l *Loader) Join(ctx context.Context, userID int64, inviteCode string) (*model.Household, error) {
	h, err := l.households.GetByInviteCode(inviteCode)
	if err != nil {
		return nil, fmt.Errorf("lookup invite code: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("invalid invite code")
	}

	existing, err := l.households.GetMember(h.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if existing != nil {
		return h, nil
	}

	activeMembers, err := l.households.CountActiveMembers(h.ID)
	if err != nil {
		return nil, fmt.Errorf("count active members: %w", err)
	}
	if activeMembers >= h.MaxMembers {
		return nil, fmt.Errorf("household %q is full", h.Name)
	}

	limits := l.resolver.Limits(userID)
	activeHouseholds, err := l.households.CountActiveHouseholds(userID)
	if err != nil {
		return nil, fmt.Errorf("count active households: %w", err)
	}
	isActive := activeHouseholds < limits.MaxActiveHouseholds

	if _, err := l.households.AddMember(h.ID, userID, model.RoleMember, isActive); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	l.logger.Info("member joined household", "household_id", h.ID, "user_id", userID, "active", isActive)
	return h, nil
}
