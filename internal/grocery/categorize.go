package grocery

import "strings"

// Grocery categories used across the pantry and shopping list.
const (
	CategoryProduce   = "Produce"
	CategoryDairy     = "Dairy"
	CategoryMeat      = "Meat & Seafood"
	CategoryBakery    = "Bakery"
	CategoryPantry    = "Pantry"
	CategoryFrozen    = "Frozen"
	CategoryBeverages = "Beverages"
	CategorySnacks    = "Snacks"
	CategoryHousehold = "Household"
	CategoryOther     = "Other"
)

// Categories returns the display order for category groupings.
func Categories() []string {
	return []string{
		CategoryProduce, CategoryDairy, CategoryMeat, CategoryBakery,
		CategoryPantry, CategoryFrozen, CategoryBeverages, CategorySnacks,
		CategoryHousehold, CategoryOther,
	}
}

// Categorize guesses the category for an item name. Exact match wins, then
// substring match in table order. Unknown names land in Other.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return CategoryOther
	}

	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return CategoryOther
}

var exactMatch = map[string]string{
	// Produce
	"apple":        CategoryProduce,
	"apples":       CategoryProduce,
	"banana":       CategoryProduce,
	"bananas":      CategoryProduce,
	"orange":       CategoryProduce,
	"oranges":      CategoryProduce,
	"lemon":        CategoryProduce,
	"lemons":       CategoryProduce,
	"avocado":      CategoryProduce,
	"avocados":     CategoryProduce,
	"tomato":       CategoryProduce,
	"tomatoes":     CategoryProduce,
	"potato":       CategoryProduce,
	"potatoes":     CategoryProduce,
	"onion":        CategoryProduce,
	"onions":       CategoryProduce,
	"garlic":       CategoryProduce,
	"lettuce":      CategoryProduce,
	"spinach":      CategoryProduce,
	"kale":         CategoryProduce,
	"broccoli":     CategoryProduce,
	"carrots":      CategoryProduce,
	"celery":       CategoryProduce,
	"cucumber":     CategoryProduce,
	"peppers":      CategoryProduce,
	"mushrooms":    CategoryProduce,
	"grapes":       CategoryProduce,
	"strawberries": CategoryProduce,
	"blueberries":  CategoryProduce,
	"mango":        CategoryProduce,
	"watermelon":   CategoryProduce,
	"ginger":       CategoryProduce,
	"zucchini":     CategoryProduce,
	"asparagus":    CategoryProduce,
	"green beans":  CategoryProduce,
	"cilantro":     CategoryProduce,
	"basil":        CategoryProduce,

	// Dairy
	"milk":           CategoryDairy,
	"eggs":           CategoryDairy,
	"butter":         CategoryDairy,
	"cheese":         CategoryDairy,
	"yogurt":         CategoryDairy,
	"cream cheese":   CategoryDairy,
	"sour cream":     CategoryDairy,
	"heavy cream":    CategoryDairy,
	"cottage cheese": CategoryDairy,

	// Meat & Seafood
	"chicken":     CategoryMeat,
	"beef":        CategoryMeat,
	"pork":        CategoryMeat,
	"turkey":      CategoryMeat,
	"bacon":       CategoryMeat,
	"sausage":     CategoryMeat,
	"ham":         CategoryMeat,
	"steak":       CategoryMeat,
	"salmon":      CategoryMeat,
	"shrimp":      CategoryMeat,
	"tuna":        CategoryMeat,
	"fish":        CategoryMeat,
	"ground beef": CategoryMeat,
	"hot dogs":    CategoryMeat,
	"deli meat":   CategoryMeat,

	// Bakery
	"bread":     CategoryBakery,
	"bagels":    CategoryBakery,
	"tortillas": CategoryBakery,
	"rolls":     CategoryBakery,
	"buns":      CategoryBakery,
	"muffins":   CategoryBakery,
	"croissants": CategoryBakery,

	// Pantry
	"rice":          CategoryPantry,
	"pasta":         CategoryPantry,
	"flour":         CategoryPantry,
	"sugar":         CategoryPantry,
	"salt":          CategoryPantry,
	"olive oil":     CategoryPantry,
	"cereal":        CategoryPantry,
	"oatmeal":       CategoryPantry,
	"peanut butter": CategoryPantry,
	"honey":         CategoryPantry,
	"beans":         CategoryPantry,
	"lentils":       CategoryPantry,
	"ketchup":       CategoryPantry,
	"mustard":       CategoryPantry,
	"mayo":          CategoryPantry,
	"soy sauce":     CategoryPantry,
	"canned tomatoes": CategoryPantry,

	// Frozen
	"ice cream":        CategoryFrozen,
	"frozen pizza":     CategoryFrozen,
	"frozen vegetables": CategoryFrozen,
	"frozen fruit":     CategoryFrozen,
	"frozen waffles":   CategoryFrozen,

	// Beverages
	"coffee":       CategoryBeverages,
	"tea":          CategoryBeverages,
	"juice":        CategoryBeverages,
	"soda":         CategoryBeverages,
	"beer":         CategoryBeverages,
	"wine":         CategoryBeverages,
	"orange juice": CategoryBeverages,

	// Snacks
	"chips":    CategorySnacks,
	"crackers": CategorySnacks,
	"popcorn":  CategorySnacks,
	"pretzels": CategorySnacks,
	"cookies":  CategorySnacks,
	"granola bars": CategorySnacks,

	// Household
	"paper towels":   CategoryHousehold,
	"toilet paper":   CategoryHousehold,
	"dish soap":      CategoryHousehold,
	"laundry detergent": CategoryHousehold,
	"trash bags":     CategoryHousehold,
	"sponges":        CategoryHousehold,
	"shampoo":        CategoryHousehold,
	"toothpaste":     CategoryHousehold,
}

// substringMatches is checked in order; longer, more specific keywords
// come first.
var substringMatches = []struct {
	keyword  string
	category string
}{
	{"frozen", CategoryFrozen},
	{"sparkling water", CategoryBeverages},
	{"chicken", CategoryMeat},
	{"beef", CategoryMeat},
	{"pork", CategoryMeat},
	{"turkey", CategoryMeat},
	{"salmon", CategoryMeat},
	{"shrimp", CategoryMeat},
	{"yogurt", CategoryDairy},
	{"cheese", CategoryDairy},
	{"milk", CategoryDairy},
	{"cream", CategoryDairy},
	{"bread", CategoryBakery},
	{"bagel", CategoryBakery},
	{"tortilla", CategoryBakery},
	{"spinach", CategoryProduce},
	{"lettuce", CategoryProduce},
	{"berries", CategoryProduce},
	{"pepper", CategoryProduce},
	{"onion", CategoryProduce},
	{"tomato", CategoryProduce},
	{"apple", CategoryProduce},
	{"banana", CategoryProduce},
	{"canned", CategoryPantry},
	{"sauce", CategoryPantry},
	{"pasta", CategoryPantry},
	{"rice", CategoryPantry},
	{"cereal", CategoryPantry},
	{"oil", CategoryPantry},
	{"soap", CategoryHousehold},
	{"detergent", CategoryHousehold},
	{"cleaner", CategoryHousehold},
	{"paper", CategoryHousehold},
	{"juice", CategoryBeverages},
	{"water", CategoryBeverages},
	{"coffee", CategoryBeverages},
	{"tea", CategoryBeverages},
	{"chip", CategorySnacks},
	{"cookie", CategorySnacks},
	{"cracker", CategorySnacks},
	{"bar", CategorySnacks},
}
