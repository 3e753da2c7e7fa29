// Package extract turns free-form transaction text (bank SMS, pasted notes)
// into a structured expense draft.
//
// Extraction is heuristic: every field is tried against an ordered chain of
// patterns and the first pattern that yields a usable value wins. Each field
// that is found adds a fixed weight to the confidence score. The extractor
// keeps no state between calls and is safe for concurrent use.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"moneytrack/internal/core"
)

// Confidence contributed by each extracted field.
var (
	weightAmount   = decimal.RequireFromString("0.3")
	weightMerchant = decimal.RequireFromString("0.3")
	weightDate     = decimal.RequireFromString("0.2")
	weightCategory = decimal.RequireFromString("0.2")
)

// DefaultLabel prefixes the synthesized description.
const DefaultLabel = "SMS"

const minMerchantLen = 3

// Result is a best-effort expense draft. Nil pointers mean "not extracted".
// Date is always set and falls back to the extraction time.
type Result struct {
	Merchant    *string
	Amount      *decimal.Decimal
	Category    *string
	Date        time.Time
	Description *string
	Confidence  float64
}

// rule pairs a pattern with the handler that validates its first capture group.
type rule[T any] struct {
	pattern *regexp.Regexp
	accept  func(capture string) (T, bool)
}

// firstMatch evaluates rules in order and stops at the first accepted capture.
func firstMatch[T any](text string, rules []rule[T]) (T, bool) {
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := r.accept(m[1]); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

const amountNumber = `\s*([0-9,]+\.?[0-9]*)`

var amountRules = []rule[decimal.Decimal]{
	{regexp.MustCompile(`(?i)(?:Rs\.?|INR|₹)` + amountNumber), parseAmount},
	{regexp.MustCompile(`(?i)\$` + amountNumber), parseAmount},
	{regexp.MustCompile(`(?i)(?:USD|EUR|GBP)` + amountNumber), parseAmount},
	{regexp.MustCompile(`(?i)amount[:\s]+(?:Rs\.?|INR|₹|\$)?` + amountNumber), parseAmount},
}

var merchantRules = []rule[string]{
	{regexp.MustCompile(`(?i)(?:at|to|for)\s+([A-Z][A-Za-z0-9\s&]+?)(?:\s+on|\s+dated|\.|$)`), acceptMerchant},
	{regexp.MustCompile(`(?i)(?:merchant|vendor)[:\s]+([A-Za-z0-9\s&]+)`), acceptMerchant},
}

const numericDate = `(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})`

var dateRules = []rule[time.Time]{
	{regexp.MustCompile(numericDate), parseDate},
	{regexp.MustCompile(`(?i)(\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4})`), parseDate},
	{regexp.MustCompile(`(?i)(?:on|dated)\s+` + numericDate), parseDate},
}

// dateLayouts are tried in order against a captured date.
// Equivalent to %d/%m/%Y, %d-%m-%Y, %d/%m/%y, %d-%m-%y, %d %b %Y, %d %B %Y.
var dateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2 Jan 2006",
	"2 January 2006",
}

func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func acceptMerchant(s string) (string, bool) {
	merchant := strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(merchant) <= minMerchantLen {
		return "", false
	}
	return merchant, true
}

func parseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLabel sets the description prefix, e.g. "Email" for mailbox ingestion.
func WithLabel(label string) Option {
	return func(e *Extractor) {
		e.label = label
	}
}

// WithClock overrides the time source used for the default date.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		e.now = now
	}
}

// Extractor holds immutable settings; the pattern tables are shared.
type Extractor struct {
	label string
	now   func() time.Time
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		label: DefaultLabel,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = New()

// Extract runs the default SMS extractor.
func Extract(text string, knownCategories []string) Result {
	return defaultExtractor.Extract(text, knownCategories)
}

// Extract parses text into a draft. It never fails: fields that cannot be
// found stay nil and contribute nothing to the confidence.
func (e *Extractor) Extract(text string, knownCategories []string) Result {
	text = strings.TrimSpace(text)
	confidence := decimal.Zero
	var res Result

	if amount, ok := firstMatch(text, amountRules); ok {
		res.Amount = &amount
		confidence = confidence.Add(weightAmount)
	}

	if merchant, ok := firstMatch(text, merchantRules); ok {
		res.Merchant = &merchant
		confidence = confidence.Add(weightMerchant)
	}

	if date, ok := firstMatch(text, dateRules); ok {
		res.Date = date
		confidence = confidence.Add(weightDate)
	} else {
		res.Date = e.now()
	}

	if res.Merchant != nil {
		if category, ok := inferCategory(*res.Merchant, knownCategories); ok {
			res.Category = &category
			confidence = confidence.Add(weightCategory)
		}
	}
	if res.Category == nil && len(knownCategories) > 0 {
		fallback := knownCategories[0]
		res.Category = &fallback
	}

	if res.Merchant != nil {
		desc := e.label + " transaction at " + *res.Merchant
		res.Description = &desc
	}

	res.Confidence = confidence.InexactFloat64()
	return res
}

// inferCategory returns the first table category that the user owns and whose
// keywords appear in the merchant name.
func inferCategory(merchant string, knownCategories []string) (string, bool) {
	known := make(map[string]struct{}, len(knownCategories))
	for _, name := range knownCategories {
		known[name] = struct{}{}
	}

	lower := strings.ToLower(merchant)
	for _, cat := range categoryKeywords {
		if _, ok := known[cat.name]; !ok {
			continue
		}
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				return cat.name, true
			}
		}
	}
	return "", false
}
