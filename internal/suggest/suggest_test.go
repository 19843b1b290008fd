package suggest

import (
	"testing"
	"time"

	"github.com/larderapp/larder/internal/model"
)

func TestSuggestFrequencyOutranksStaples(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	purchases := []model.Purchase{
		{Name: "Oat Milk"}, {Name: "oat milk"}, {Name: "Oat Milk"},
	}

	got := Suggest(purchases, nil, nil, now, 5)
	if len(got) == 0 {
		t.Fatal("no suggestions")
	}
	if got[0].Name != "Oat Milk" || got[0].Reason != ReasonFrequent {
		t.Fatalf("top suggestion = %+v, want frequent oat milk", got[0])
	}
	if got[0].Score != 30 {
		t.Errorf("score = %d, want 30", got[0].Score)
	}
}

func TestSuggestExcludesPantryAndList(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	pantry := []model.Item{{Name: "Milk"}, {Name: "eggs"}}
	list := []model.ShoppingListItem{{Name: "Bread"}}

	for _, s := range Suggest(nil, pantry, list, now, 0) {
		switch s.Name {
		case "milk", "eggs", "bread":
			t.Errorf("suggested %q, which the household already has", s.Name)
		}
	}
}

func TestSuggestSeasonalByMonth(t *testing.T) {
	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	found := false
	for _, s := range Suggest(nil, nil, nil, july, 0) {
		if s.Name == "watermelon" {
			found = true
			if s.Reason != ReasonSeasonal {
				t.Errorf("watermelon reason = %q", s.Reason)
			}
		}
	}
	if !found {
		t.Fatal("expected watermelon in July")
	}

	for _, s := range Suggest(nil, nil, nil, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0) {
		if s.Name == "watermelon" {
			t.Fatal("watermelon suggested in January")
		}
	}
}

func TestSuggestDeterministicOrderAndLimit(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	a := Suggest(nil, nil, nil, now, 4)
	b := Suggest(nil, nil, nil, now, 4)
	if len(a) != 4 || len(b) != 4 {
		t.Fatalf("limit not applied: %d, %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("order not deterministic at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
	for i := 1; i < len(a); i++ {
		if a[i].Score > a[i-1].Score {
			t.Fatalf("scores not descending: %+v", a)
		}
	}
}

func TestSuggestPriceBands(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range Suggest(nil, nil, nil, now, 0) {
		if s.Name == "milk" {
			if s.PriceLow != 249 || s.PriceHigh != 499 {
				t.Errorf("milk price band = %d-%d", s.PriceLow, s.PriceHigh)
			}
			return
		}
	}
	t.Fatal("milk not suggested")
}
