package core

// Starter categories created for a user that has none yet.
var defaultCategories = []Category{
	{Name: "Food & Dining", Color: "#0ea5e9", Icon: "🍔"},
	{Name: "Transportation", Color: "#a855f7", Icon: "🚗"},
	{Name: "Shopping", Color: "#f59e0b", Icon: "🛍️"},
	{Name: "Entertainment", Color: "#10b981", Icon: "🎬"},
	{Name: "Bills & Utilities", Color: "#ef4444", Icon: "📄"},
	{Name: "Healthcare", Color: "#ec4899", Icon: "⚕️"},
	{Name: "Education", Color: "#8b5cf6", Icon: "📚"},
	{Name: "Travel", Color: "#06b6d4", Icon: "✈️"},
}

// DefaultCategories returns a fresh copy of the starter categories owned by userID.
func DefaultCategories(userID string) []Category {
	out := make([]Category, len(defaultCategories))
	for i, c := range defaultCategories {
		c.UserID = userID
		out[i] = c
	}
	return out
}

// CategoryNames projects categories to their names, preserving order.
func CategoryNames(cats []Category) []string {
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

// CategoryColors maps category name to display color.
func CategoryColors(cats []Category) map[string]string {
	colors := make(map[string]string, len(cats))
	for _, c := range cats {
		colors[c.Name] = c.Color
	}
	return colors
}
