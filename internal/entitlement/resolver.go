package entitlement

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

// Status is the resolved entitlement for one user.
type Status struct {
	IsActive        bool       `json:"is_active"`
	Status          string     `json:"status"`
	TrialEnd        *time.Time `json:"trial_end"`
	DaysLeftInTrial int        `json:"days_left_in_trial"`
	CheckedAt       time.Time  `json:"checked_at"`
}

// Compute derives a Status from a subscription record. A nil subscription
// is free tier. Pure; all time handling goes through now.
func Compute(sub *model.Subscription, now time.Time) Status {
	st := Status{Status: model.SubscriptionFree, CheckedAt: now}
	if sub == nil {
		return st
	}
	st.Status = sub.Status
	st.TrialEnd = sub.TrialEnd

	trialing := sub.Status == model.SubscriptionTrialing && sub.TrialEnd != nil && sub.TrialEnd.After(now)
	st.IsActive = sub.Status == model.SubscriptionActive || trialing

	if sub.TrialEnd != nil {
		left := sub.TrialEnd.Sub(now)
		if left > 0 {
			st.DaysLeftInTrial = int((left + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
		}
	}
	return st
}

// Resolver caches per-user entitlement and detects premium-to-free
// transitions. A single in-flight guard per user keeps overlapping refresh
// triggers from stacking; re-checks within minRecheck of the last one are
// no-ops.
type Resolver struct {
	mu         sync.Mutex
	subs       *store.SubscriptionStore
	households *store.HouseholdStore
	logger     *slog.Logger

	now           func() time.Time
	minRecheck    time.Duration
	checkInterval time.Duration

	statuses map[int64]Status
	inFlight map[int64]bool

	onDowngrade func(userID int64)

	stopCh  chan struct{}
	stopped chan struct{}
}

type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithMinRecheck overrides the minimum interval between on-demand refreshes.
func WithMinRecheck(d time.Duration) Option {
	return func(r *Resolver) { r.minRecheck = d }
}

// WithCheckInterval overrides the periodic re-check interval.
func WithCheckInterval(d time.Duration) Option {
	return func(r *Resolver) { r.checkInterval = d }
}

func NewResolver(subs *store.SubscriptionStore, households *store.HouseholdStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		subs:          subs,
		households:    households,
		logger:        logger,
		now:           time.Now,
		minRecheck:    5 * time.Minute,
		checkInterval: 30 * time.Minute,
		statuses:      make(map[int64]Status),
		inFlight:      make(map[int64]bool),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnDowngrade registers the callback fired once per premium-to-free
// transition. Must be set before the resolver is used.
func (r *Resolver) OnDowngrade(fn func(userID int64)) {
	r.onDowngrade = fn
}

// Resolve fetches the subscription and recomputes the user's status,
// firing the downgrade callback on a true-to-false edge. Fetch failures
// fail open to free tier without touching the cache, so a transient error
// never triggers reconciliation.
func (r *Resolver) Resolve(userID int64) (Status, error) {
	now := r.now()

	sub, err := r.subs.GetByUserID(userID)
	if err != nil {
		r.logger.Error("resolve entitlement", "user_id", userID, "error", err)
		return Status{Status: model.SubscriptionFree, CheckedAt: now}, err
	}

	st := Compute(sub, now)

	r.mu.Lock()
	prev, had := r.statuses[userID]
	r.statuses[userID] = st
	r.mu.Unlock()

	if had && prev.IsActive && !st.IsActive && r.onDowngrade != nil {
		r.onDowngrade(userID)
	}
	return st, nil
}

// Refresh is the on-demand trigger (auth change, app foregrounding). It is
// suppressed while another check for the same user is in flight, and when
// the last check is fresher than minRecheck. force bypasses the freshness
// window but not the in-flight guard.
func (r *Resolver) Refresh(userID int64, force bool) (Status, error) {
	r.mu.Lock()
	if r.inFlight[userID] {
		st := r.statuses[userID]
		r.mu.Unlock()
		return st, nil
	}
	if st, ok := r.statuses[userID]; ok && !force && r.now().Sub(st.CheckedAt) < r.minRecheck {
		r.mu.Unlock()
		return st, nil
	}
	r.inFlight[userID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, userID)
		r.mu.Unlock()
	}()

	return r.Resolve(userID)
}

// Cached returns the last resolved status without touching the store.
func (r *Resolver) Cached(userID int64) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statuses[userID]
	return st, ok
}

// Limits returns the capacity table for a user, resolving if nothing is
// cached yet. Errors fail open to free-tier limits.
func (r *Resolver) Limits(userID int64) Limits {
	if st, ok := r.Cached(userID); ok {
		return LimitsFor(st.IsActive)
	}
	st, err := r.Resolve(userID)
	if err != nil {
		return LimitsFor(false)
	}
	return LimitsFor(st.IsActive)
}

// HouseholdPremium reports whether a household has premium capacity. The
// check is keyed on the household OWNER's entitlement, not the caller's:
// members of a premium-owned household get its premium item capacity. The
// computation is pure and does not disturb the owner's cached status.
func (r *Resolver) HouseholdPremium(householdID int64) (bool, error) {
	h, err := r.households.GetByID(householdID)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, fmt.Errorf("household %d not found", householdID)
	}
	sub, err := r.subs.GetByUserID(h.OwnerID)
	if err != nil {
		return false, err
	}
	return Compute(sub, r.now()).IsActive, nil
}

// Forget drops a user's cached status; called on logout.
func (r *Resolver) Forget(userID int64) {
	r.mu.Lock()
	delete(r.statuses, userID)
	r.mu.Unlock()
}

// Start begins the periodic re-check loop over all cached users.
func (r *Resolver) Start() {
	go func() {
		defer close(r.stopped)
		ticker := time.NewTicker(r.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.recheckAll()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts the periodic re-check loop.
func (r *Resolver) Stop() {
	close(r.stopCh)
	<-r.stopped
}

func (r *Resolver) recheckAll() {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.statuses))
	for id := range r.statuses {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if _, err := r.Refresh(id, true); err != nil {
			r.logger.Warn("periodic entitlement check", "user_id", id, "error", err)
		}
	}
}
