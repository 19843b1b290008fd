package waste

import (
	"sort"
	"time"

	"github.com/larderapp/larder/internal/model"
)

// CategoryStat summarizes dispositions within one category.
type CategoryStat struct {
	Category        string `json:"category"`
	Wasted          int    `json:"wasted"`
	Consumed        int    `json:"consumed"`
	WastedValueCents int64 `json:"wasted_value_cents"`
}

// MonthStat is one month's bucket in the trend series.
type MonthStat struct {
	Month           string `json:"month"`
	Wasted          int    `json:"wasted"`
	Consumed        int    `json:"consumed"`
	WastedValueCents int64 `json:"wasted_value_cents"`
}

// Report is the household waste summary over a window.
type Report struct {
	TotalWasted      int            `json:"total_wasted"`
	TotalConsumed    int            `json:"total_consumed"`
	WastedValueCents int64          `json:"wasted_value_cents"`
	WasteRate        float64        `json:"waste_rate"`
	ByCategory       []CategoryStat `json:"by_category"`
	ByMonth          []MonthStat    `json:"by_month"`
}

// Build computes a report from disposed items. Items without a disposed
// timestamp are skipped. Categories sort by wasted value descending, months
// chronologically.
func Build(items []model.Item) *Report {
	r := &Report{}
	cats := make(map[string]*CategoryStat)
	months := make(map[string]*MonthStat)

	for _, it := range items {
		if it.DisposedAt == nil {
			continue
		}
		cat := cats[it.Category]
		if cat == nil {
			cat = &CategoryStat{Category: it.Category}
			cats[it.Category] = cat
		}
		monthKey := it.DisposedAt.UTC().Format("2006-01")
		month := months[monthKey]
		if month == nil {
			month = &MonthStat{Month: monthKey}
			months[monthKey] = month
		}

		switch it.Disposition {
		case model.DispositionWasted:
			r.TotalWasted++
			r.WastedValueCents += it.PriceCents
			cat.Wasted++
			cat.WastedValueCents += it.PriceCents
			month.Wasted++
			month.WastedValueCents += it.PriceCents
		case model.DispositionConsumed:
			r.TotalConsumed++
			cat.Consumed++
			month.Consumed++
		}
	}

	if total := r.TotalWasted + r.TotalConsumed; total > 0 {
		r.WasteRate = float64(r.TotalWasted) / float64(total)
	}

	for _, c := range cats {
		r.ByCategory = append(r.ByCategory, *c)
	}
	sort.Slice(r.ByCategory, func(i, j int) bool {
		if r.ByCategory[i].WastedValueCents != r.ByCategory[j].WastedValueCents {
			return r.ByCategory[i].WastedValueCents > r.ByCategory[j].WastedValueCents
		}
		return r.ByCategory[i].Category < r.ByCategory[j].Category
	})

	for _, m := range months {
		r.ByMonth = append(r.ByMonth, *m)
	}
	sort.Slice(r.ByMonth, func(i, j int) bool { return r.ByMonth[i].Month < r.ByMonth[j].Month })

	return r
}

// WindowStart returns the default report window start, n months before now.
func WindowStart(now time.Time, months int) time.Time {
	return now.UTC().AddDate(0, -months, 0)
}
