package model

import "time"

// Dispositions record how an item left the pantry. An empty disposition
// means the item is still live.
const (
	DispositionConsumed = "consumed"
	DispositionWasted   = "wasted"
)

type Item struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Quantity    int        `json:"quantity"`
	PriceCents  int64      `json:"price_cents"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Disposition string     `json:"disposition"`
	DisposedAt  *time.Time `json:"disposed_at"`
	AddedBy     *int64     `json:"added_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ShoppingListItem struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Checked     bool       `json:"checked"`
	CheckedAt   *time.Time `json:"checked_at"`
	AddedBy     *int64     `json:"added_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Purchase is the log row written when checked shopping items are cleared.
type Purchase struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	PurchasedAt time.Time `json:"purchased_at"`
}
