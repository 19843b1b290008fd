package reconcile

import (
	"fmt"
	"log/slog"

	"github.com/larderapp/larder/internal/entitlement"
	"github.com/larderapp/larder/internal/model"
	"github.com/larderapp/larder/internal/store"
)

// State is where a household sits in the downgrade lifecycle.
type State string

const (
	// StateCompliant means the household fits free-tier capacity.
	StateCompliant State = "compliant"
	// StateOverCapacity means the household exceeds free-tier capacity and
	// has not been reconciled yet.
	StateOverCapacity State = "over_capacity"
	// StateReconciled means this run forced the household under capacity.
	StateReconciled State = "reconciled"
)

// HouseholdOutcome reports what happened to one owned household.
type HouseholdOutcome struct {
	HouseholdID         int64  `json:"household_id"`
	HouseholdName       string `json:"household_name"`
	State               State  `json:"state"`
	MembersBefore       int    `json:"members_before"`
	MembersAfter        int    `json:"members_after"`
	MembersMadeInactive int    `json:"members_made_inactive"`
}

// Result summarizes a reconciliation run for one user.
type Result struct {
	Households        []HouseholdOutcome `json:"households"`
	SelectionRequired bool               `json:"selection_required"`
}

// Reconciler walks a downgraded user's owned households and forces each one
// under free-tier capacity. Running it against an already-compliant account
// changes nothing, so the premium-to-free trigger may fire it repeatedly
// without harm.
type Reconciler struct {
	households *store.HouseholdStore
	profiles   *store.ProfileStore
	notices    *store.NoticeStore
	logger     *slog.Logger

	order store.DeactivationOrder

	// notify, when set, delivers each created notice out of band (push,
	// websocket). Delivery failures never fail the run.
	notify func(notice *model.DowngradeNotice)
}

func NewReconciler(households *store.HouseholdStore, profiles *store.ProfileStore, notices *store.NoticeStore, order store.DeactivationOrder, logger *slog.Logger) *Reconciler {
	if order == "" {
		order = store.DeactivateNewestFirst
	}
	return &Reconciler{
		households: households,
		profiles:   profiles,
		notices:    notices,
		logger:     logger,
		order:      order,
	}
}

// OnNotice registers the out-of-band delivery hook.
func (r *Reconciler) OnNotice(fn func(notice *model.DowngradeNotice)) {
	r.notify = fn
}

// Check reports a single household's position relative to free-tier
// capacity without changing anything.
func (r *Reconciler) Check(householdID int64) (State, int, error) {
	free := entitlement.LimitsFor(false)
	over, active, err := r.households.DowngradeStatus(householdID, free.MaxHouseholdMembers)
	if err != nil {
		return "", 0, err
	}
	if over {
		return StateOverCapacity, active, nil
	}
	return StateCompliant, active, nil
}

// Run reconciles every household the user owns, then checks the user's own
// membership count against the free-tier cap. Member capacity is enforced
// here; a surplus of ACTIVE HOUSEHOLDS is not. Which households stay active
// is the user's call, so that case only raises the selection flag and waits.
func (r *Reconciler) Run(userID int64) (*Result, error) {
	free := entitlement.LimitsFor(false)

	owned, err := r.households.ListOwnedBy(userID)
	if err != nil {
		return nil, fmt.Errorf("list owned households: %w", err)
	}

	result := &Result{}
	for _, h := range owned {
		outcome, err := r.reconcileHousehold(userID, h, free.MaxHouseholdMembers)
		if err != nil {
			return nil, err
		}
		result.Households = append(result.Households, *outcome)
	}

	activeCount, err := r.households.CountActiveHouseholds(userID)
	if err != nil {
		return nil, fmt.Errorf("count active households: %w", err)
	}
	if activeCount > free.MaxActiveHouseholds {
		if err := r.profiles.SetNeedsHouseholdSelection(userID, true); err != nil {
			return nil, fmt.Errorf("flag household selection: %w", err)
		}
		result.SelectionRequired = true
		r.logger.Info("household selection required", "user_id", userID, "active_households", activeCount)
	}

	return result, nil
}

func (r *Reconciler) reconcileHousehold(userID int64, h model.Household, maxMembers int) (*HouseholdOutcome, error) {
	outcome := &HouseholdOutcome{HouseholdID: h.ID, HouseholdName: h.Name}

	dr, err := r.households.Downgrade(h.ID, maxMembers, r.order)
	if err != nil {
		return nil, fmt.Errorf("downgrade household %d: %w", h.ID, err)
	}
	outcome.MembersBefore = dr.MembersBefore
	outcome.MembersAfter = dr.MembersAfter
	outcome.MembersMadeInactive = dr.MembersMadeInactive

	if dr.MembersMadeInactive == 0 {
		outcome.State = StateCompliant
		return outcome, nil
	}
	outcome.State = StateReconciled

	notice, err := r.notices.Create(userID, h.ID, h.Name, dr.MembersBefore, dr.MembersAfter, dr.MembersMadeInactive)
	if err != nil {
		// The deactivations committed. Log and keep going rather than
		// leave the run half-done over a missing notice row.
		r.logger.Error("create downgrade notice", "household_id", h.ID, "error", err)
		return outcome, nil
	}

	r.logger.Info("household reconciled",
		"household_id", h.ID,
		"members_before", dr.MembersBefore,
		"members_after", dr.MembersAfter,
		"deactivated", dr.MembersMadeInactive)

	if r.notify != nil {
		r.notify(notice)
	}
	return outcome, nil
}
