package entitlement

// Unlimited marks a limit with no cap.
const Unlimited = -1

// Limits is the capacity table for a tier. It is a pure function of
// premium access: nothing else feeds into it.
type Limits struct {
	MaxActiveHouseholds  int `json:"max_active_households"`
	MaxItemsPerHousehold int `json:"max_items_per_household"`
	MaxHouseholdMembers  int `json:"max_household_members"`
}

var (
	freeLimits    = Limits{MaxActiveHouseholds: 1, MaxItemsPerHousehold: 20, MaxHouseholdMembers: 5}
	premiumLimits = Limits{MaxActiveHouseholds: 5, MaxItemsPerHousehold: Unlimited, MaxHouseholdMembers: 20}
)

// LimitsFor returns the capacity table for the given access level.
func LimitsFor(isActive bool) Limits {
	if isActive {
		return premiumLimits
	}
	return freeLimits
}

// AllowsItems reports whether a household at the given live-item count may
// add another item.
func (l Limits) AllowsItems(count int) bool {
	return l.MaxItemsPerHousehold == Unlimited || count < l.MaxItemsPerHousehold
}
