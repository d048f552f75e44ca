package core

import "strings"

// Category is a known expense or income category and its suggested
// subcategories.
type Category struct {
	Name          string   `json:"name"`
	Icon          string   `json:"icon"`
	Color         string   `json:"color"`
	Subcategories []string `json:"subcategories"`
}

// OtherCategory is used when an extracted category matches nothing known.
const OtherCategory = "Other"

// Categories is the default taxonomy, in display order.
var Categories = []Category{
	{Name: "Food", Icon: "🍽️", Color: "#FF6B35", Subcategories: []string{
		"Lunch", "Dinner", "Breakfast", "Fruits", "Milk", "Dates", "Cashew", "Almond", "Snacks",
		"Beverages", "Coffee", "Tea", "Groceries", "Vegetables", "Rice/Wheat", "Other Food",
	}},
	{Name: "Transportation", Icon: "🚗", Color: "#4ECDC4", Subcategories: []string{
		"Petrol", "Auto", "Cab", "Bus", "Train", "Metro", "Parking", "Toll",
	}},
	{Name: "Essentials/Personal Care", Icon: "🧴", Color: "#45B7D1", Subcategories: []string{
		"Toiletries", "Medicine", "Haircut", "Laundry", "Other",
	}},
	{Name: "Telecommunications", Icon: "📱", Color: "#96CEB4", Subcategories: []string{
		"Mobile Recharge", "Internet", "DTH", "Subscriptions",
	}},
	{Name: "Family Spent", Icon: "👨‍👩‍👧", Color: "#DDA0DD", Subcategories: []string{
		"Parents", "Siblings", "Kids", "Relatives", "Other",
	}},
	{Name: "Gifts/Donations", Icon: "🎁", Color: "#FFD93D", Subcategories: []string{
		"Birthday", "Wedding", "Charity", "Religious", "Other",
	}},
	{Name: "Trip/Entry Fees", Icon: "✈️", Color: "#6BCB77", Subcategories: []string{
		"Travel", "Hotel", "Entry Tickets", "Activities", "Food on Trip",
	}},
	{Name: "Medical", Icon: "🏥", Color: "#FF6B6B", Subcategories: []string{
		"Doctor", "Medicine", "Tests", "Insurance", "Other",
	}},
	{Name: "BRIBE", Icon: "💸", Color: "#C0C0C0", Subcategories: []string{}},
	{Name: "Entertainment", Icon: "🎬", Color: "#A855F7", Subcategories: []string{
		"Movies", "OTT", "Games", "Events", "Other",
	}},
	{Name: "Shopping", Icon: "🛍️", Color: "#EC4899", Subcategories: []string{
		"Clothes", "Electronics", "Home", "Books", "Other",
	}},
	{Name: "Bills & Utilities", Icon: "💡", Color: "#F59E0B", Subcategories: []string{
		"Electricity", "Water", "Gas", "Rent", "Maintenance",
	}},
	{Name: IncomeCategory, Icon: "💰", Color: "#10B981", Subcategories: []string{
		"Salary", "Freelance", "Investment", "Refund", "Other",
	}},
}

// extractorAliases maps the coarse names the extractor is prompted with
// onto the taxonomy.
var extractorAliases = map[string]string{
	"travel":     "Transportation",
	"health":     "Medical",
	"bills":      "Bills & Utilities",
	"essentials": "Essentials/Personal Care",
}

// CanonicalCategory returns the taxonomy spelling of name. Unknown names
// are returned trimmed and unchanged; an empty name stays empty.
func CanonicalCategory(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	for _, c := range Categories {
		if strings.EqualFold(c.Name, name) {
			return c.Name
		}
	}
	if alias, ok := extractorAliases[strings.ToLower(name)]; ok {
		return alias
	}
	return name
}

// IsKnownCategory reports whether name is in the taxonomy.
func IsKnownCategory(name string) bool {
	for _, c := range Categories {
		if c.Name == name {
			return true
		}
	}
	return false
}
