package llmparse

import "strings"

// FallbackCategory is assigned when neither the model's label nor the
// description keywords match anything known.
const FallbackCategory = "other"

// categoryAliases maps model-reported category labels onto the canonical
// set. Labels not listed here are ignored in favor of keyword rules.
var categoryAliases = map[string]string{
	"grocery":       "groceries",
	"groceries":     "groceries",
	"food":          "food",
	"restaurant":    "food",
	"dining":        "food",
	"gas":           "fuel",
	"fuel":          "fuel",
	"shopping":      "shopping",
	"retail":        "shopping",
	"entertainment": "entertainment",
	"medical":       "healthcare",
	"healthcare":    "healthcare",
	"utility":       "utilities",
	"utilities":     "utilities",
	"transfer":      "transfer",
	"payment":       "payment",
	"fee":           "fees",
	"fees":          "fees",
}

// CategoryRule maps a description keyword to a category. Rules are evaluated
// in order, first match wins; append new rules rather than changing parser
// control flow.
type CategoryRule struct {
	Keyword  string
	Category string
}

// DefaultCategoryRules classify by merchant keywords in the description.
var DefaultCategoryRules = []CategoryRule{
	{"grocery", "groceries"},
	{"supermarket", "groceries"},
	{"walmart", "groceries"},
	{"aldi", "groceries"},
	{"tesco", "groceries"},
	{"restaurant", "food"},
	{"cafe", "food"},
	{"coffee", "food"},
	{"mcdonald", "food"},
	{"pizza", "food"},
	{"shell", "fuel"},
	{"exxon", "fuel"},
	{"petrol", "fuel"},
	{"fuel", "fuel"},
	{"gas station", "fuel"},
	{"amazon", "shopping"},
	{"ebay", "shopping"},
	{"store", "shopping"},
	{"netflix", "entertainment"},
	{"spotify", "entertainment"},
	{"cinema", "entertainment"},
	{"pharmacy", "healthcare"},
	{"hospital", "healthcare"},
	{"clinic", "healthcare"},
	{"electric", "utilities"},
	{"water", "utilities"},
	{"internet", "utilities"},
	{"phone", "utilities"},
	{"transfer", "transfer"},
	{"payment", "payment"},
	{"fee", "fees"},
	{"charge", "fees"},
}

// assignCategory resolves a transaction's category: a recognized model label
// wins, otherwise the keyword rules run over the description, otherwise the
// fallback.
func assignCategory(modelLabel, description string, rules []CategoryRule) string {
	label := strings.ToLower(strings.TrimSpace(modelLabel))
	if canonical, ok := categoryAliases[label]; ok {
		return canonical
	}

	desc := strings.ToLower(description)
	for _, rule := range rules {
		if strings.Contains(desc, rule.Keyword) {
			return rule.Category
		}
	}
	return FallbackCategory
}
