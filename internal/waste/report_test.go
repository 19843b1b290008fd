package waste

import (
	"testing"
	"time"

	"github.com/larderapp/larder/internal/model"
)

func ts(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestBuildReport(t *testing.T) {
	items := []model.Item{
		{Category: "Produce", Disposition: model.DispositionWasted, PriceCents: 300, DisposedAt: ts(2026, 7, 2)},
		{Category: "Produce", Disposition: model.DispositionWasted, PriceCents: 200, DisposedAt: ts(2026, 8, 5)},
		{Category: "Produce", Disposition: model.DispositionConsumed, PriceCents: 150, DisposedAt: ts(2026, 8, 6)},
		{Category: "Dairy", Disposition: model.DispositionWasted, PriceCents: 450, DisposedAt: ts(2026, 8, 10)},
		{Category: "Dairy", Disposition: model.DispositionConsumed, PriceCents: 400, DisposedAt: ts(2026, 7, 20)},
		{Category: "Pantry", Disposition: model.DispositionConsumed, PriceCents: 100, DisposedAt: ts(2026, 8, 1)},
		// Still in the pantry, must be ignored.
		{Category: "Bakery", PriceCents: 500},
	}

	r := Build(items)

	if r.TotalWasted != 3 || r.TotalConsumed != 3 {
		t.Fatalf("totals = %d wasted / %d consumed, want 3/3", r.TotalWasted, r.TotalConsumed)
	}
	if r.WastedValueCents != 950 {
		t.Errorf("wasted value = %d, want 950", r.WastedValueCents)
	}
	if r.WasteRate != 0.5 {
		t.Errorf("waste rate = %f, want 0.5", r.WasteRate)
	}

	if len(r.ByCategory) != 3 {
		t.Fatalf("categories = %d, want 3", len(r.ByCategory))
	}
	// Produce wasted 500 cents, Dairy 450, Pantry 0.
	if r.ByCategory[0].Category != "Produce" || r.ByCategory[1].Category != "Dairy" {
		t.Errorf("category order = %s, %s", r.ByCategory[0].Category, r.ByCategory[1].Category)
	}

	if len(r.ByMonth) != 2 {
		t.Fatalf("months = %d, want 2", len(r.ByMonth))
	}
	if r.ByMonth[0].Month != "2026-07" || r.ByMonth[1].Month != "2026-08" {
		t.Errorf("month order = %s, %s", r.ByMonth[0].Month, r.ByMonth[1].Month)
	}
	if r.ByMonth[1].Wasted != 2 || r.ByMonth[1].WastedValueCents != 650 {
		t.Errorf("august = %+v", r.ByMonth[1])
	}
}

func TestBuildEmpty(t *testing.T) {
	r := Build(nil)
	if r.TotalWasted != 0 || r.TotalConsumed != 0 || r.WasteRate != 0 {
		t.Fatalf("empty report = %+v", r)
	}
	if len(r.ByCategory) != 0 || len(r.ByMonth) != 0 {
		t.Fatalf("empty report has buckets: %+v", r)
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	got := WindowStart(now, 6)
	want := time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("WindowStart = %v, want %v", got, want)
	}
}
