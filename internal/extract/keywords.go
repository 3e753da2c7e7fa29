package extract

// categoryKeywords maps well-known category names to merchant substrings.
// Order matters: the first category with a hit wins.
var categoryKeywords = []struct {
	name     string
	keywords []string
}{
	{"Food & Dining", []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "pizza", "food", "swiggy", "zomato", "dunkin"}},
	{"Transportation", []string{"uber", "lyft", "taxi", "gas", "fuel", "petrol", "metro", "train", "bus"}},
	{"Shopping", []string{"amazon", "flipkart", "walmart", "target", "mall", "store", "shop"}},
	{"Entertainment", []string{"netflix", "spotify", "movie", "cinema", "theater", "game", "prime"}},
	{"Bills & Utilities", []string{"electric", "water", "internet", "phone", "bill", "utility"}},
	{"Healthcare", []string{"hospital", "pharmacy", "medical", "doctor", "clinic"}},
}

// KeywordCategories returns the category names of the keyword table in match order.
func KeywordCategories() []string {
	names := make([]string, len(categoryKeywords))
	for i, c := range categoryKeywords {
		names[i] = c.name
	}
	return names
}
