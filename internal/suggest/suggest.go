package suggest

import (
	"sort"
	"strings"
	"time"

	"github.com/larderapp/larder/internal/grocery"
	"github.com/larderapp/larder/internal/model"
)

// Suggestion is one shopping recommendation.
type Suggestion struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Reason    string `json:"reason"`
	PriceLow  int64  `json:"price_low_cents"`
	PriceHigh int64  `json:"price_high_cents"`
	Score     int    `json:"score"`
}

// Reasons attached to suggestions.
const (
	ReasonFrequent = "bought often"
	ReasonStaple   = "pantry staple"
	ReasonSeasonal = "in season"
)

// Suggest builds a ranked shopping list from the household's purchase
// history, the staples table, and the seasonal table for the given month.
// Items already in the pantry or on the shopping list are excluded. The
// result is deterministic: score descending, then name ascending.
func Suggest(purchases []model.Purchase, pantry []model.Item, shoppingList []model.ShoppingListItem, now time.Time, limit int) []Suggestion {
	have := make(map[string]bool)
	for _, it := range pantry {
		have[normalize(it.Name)] = true
	}
	for _, it := range shoppingList {
		have[normalize(it.Name)] = true
	}

	byName := make(map[string]*Suggestion)
	add := func(name, reason string, score int) {
		key := normalize(name)
		if key == "" || have[key] {
			return
		}
		if s, ok := byName[key]; ok {
			s.Score += score
			return
		}
		low, high := priceRange(key)
		byName[key] = &Suggestion{
			Name:      name,
			Category:  grocery.Categorize(name),
			Reason:    reason,
			PriceLow:  low,
			PriceHigh: high,
			Score:     score,
		}
	}

	// Frequency wins: anything bought at least twice in the window scores
	// above every static table entry.
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, p := range purchases {
		key := normalize(p.Name)
		counts[key]++
		names[key] = p.Name
	}
	for key, n := range counts {
		if n >= 2 {
			add(names[key], ReasonFrequent, 10*n)
		}
	}

	for _, name := range staples {
		add(name, ReasonStaple, 5)
	}
	for _, name := range seasonalProduce[now.Month()] {
		add(name, ReasonSeasonal, 3)
	}

	suggestions := make([]Suggestion, 0, len(byName))
	for _, s := range byName {
		suggestions = append(suggestions, *s)
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Name < suggestions[j].Name
	})

	if limit > 0 && len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// priceRange returns a typical price band in cents, zeroes when unknown.
func priceRange(key string) (int64, int64) {
	if r, ok := typicalPrices[key]; ok {
		return r.low, r.high
	}
	return 0, 0
}

var staples = []string{
	"milk", "eggs", "bread", "butter", "rice", "pasta",
	"olive oil", "onions", "garlic", "salt", "coffee", "bananas",
}

// seasonalProduce lists northern-hemisphere peak months.
var seasonalProduce = map[time.Month][]string{
	time.January:   {"oranges", "kale", "grapefruit"},
	time.February:  {"oranges", "kale", "lemons"},
	time.March:     {"asparagus", "spinach", "lettuce"},
	time.April:     {"asparagus", "spinach", "strawberries"},
	time.May:       {"strawberries", "asparagus", "peas"},
	time.June:      {"strawberries", "blueberries", "zucchini"},
	time.July:      {"watermelon", "corn", "tomatoes", "blueberries"},
	time.August:    {"tomatoes", "corn", "peaches", "watermelon"},
	time.September: {"apples", "grapes", "tomatoes"},
	time.October:   {"apples", "pumpkin", "squash"},
	time.November:  {"squash", "sweet potatoes", "cranberries"},
	time.December:  {"oranges", "sweet potatoes", "kale"},
}

type priceBand struct {
	low, high int64
}

var typicalPrices = map[string]priceBand{
	"milk":       {249, 499},
	"eggs":       {299, 699},
	"bread":      {199, 549},
	"butter":     {349, 699},
	"rice":       {199, 899},
	"pasta":      {99, 349},
	"olive oil":  {699, 1999},
	"onions":     {99, 299},
	"garlic":     {49, 149},
	"salt":       {99, 299},
	"coffee":     {799, 1599},
	"bananas":    {49, 199},
	"apples":     {199, 499},
	"oranges":    {299, 599},
	"strawberries": {299, 599},
	"blueberries":  {299, 699},
	"tomatoes":   {199, 499},
	"corn":       {50, 150},
	"watermelon": {399, 799},
	"chicken":    {599, 1299},
}
