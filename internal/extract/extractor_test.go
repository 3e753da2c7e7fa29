package extract

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func newTestExtractor(opts ...Option) *Extractor {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func strVal(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestExtractFullSMS(t *testing.T) {
	x := newTestExtractor()
	res := x.Extract("Spent Rs.500 at Starbucks on 12/12/2024", []string{"Food & Dining", "Transportation"})

	if res.Amount == nil || !res.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected amount 500, got %v", res.Amount)
	}
	if strVal(res.Merchant) != "Starbucks" {
		t.Fatalf("expected merchant Starbucks, got %q", strVal(res.Merchant))
	}
	if strVal(res.Category) != "Food & Dining" {
		t.Fatalf("expected Food & Dining, got %q", strVal(res.Category))
	}
	if want := time.Date(2024, 12, 12, 0, 0, 0, 0, time.UTC); !res.Date.Equal(want) {
		t.Fatalf("expected date %v, got %v", want, res.Date)
	}
	if strVal(res.Description) != "SMS transaction at Starbucks" {
		t.Fatalf("unexpected description %q", strVal(res.Description))
	}
	if res.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", res.Confidence)
	}
}

func TestExtractNoMatches(t *testing.T) {
	x := newTestExtractor()

	res := x.Extract("hello world", []string{"Shopping", "Travel"})
	if res.Amount != nil || res.Merchant != nil || res.Description != nil {
		t.Fatalf("expected no extracted fields, got %+v", res)
	}
	if strVal(res.Category) != "Shopping" {
		t.Fatalf("expected fallback category Shopping, got %q", strVal(res.Category))
	}
	if !res.Date.Equal(fixedNow) {
		t.Fatalf("expected default date %v, got %v", fixedNow, res.Date)
	}
	if res.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", res.Confidence)
	}

	empty := x.Extract("", nil)
	if empty.Category != nil || empty.Confidence != 0 || !empty.Date.Equal(fixedNow) {
		t.Fatalf("unexpected result for empty text: %+v", empty)
	}
}

func TestExtractAmount(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"rupee with thousands", "Rs 1,234.50 debited", "1234.50"},
		{"rupee sign", "₹ 99 spent", "99"},
		{"inr", "INR 2,000 withdrawn", "2000"},
		{"dollar", "Transaction of $25.50", "25.50"},
		{"iso code", "Charged EUR 12.30", "12.30"},
		{"labelled", "Amount: 75", "75"},
		{"trailing dot", "Paid Rs.500. Thanks", "500"},
		{"falls through unparsable capture", "Rs, and $40", "40"},
	}
	x := newTestExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := x.Extract(tc.text, nil)
			if res.Amount == nil || !res.Amount.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("expected %s, got %v", tc.want, res.Amount)
			}
			if res.Confidence != 0.3 {
				t.Fatalf("expected confidence 0.3, got %v", res.Confidence)
			}
		})
	}
}

func TestExtractMerchant(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"preposition before on", "Rs 500 debited from your account for AMAZON on 12-Dec-2024", "AMAZON"},
		{"preposition at end", "Transaction of $25.50 at UBER", "UBER"},
		{"collapses whitespace", "Paid to Corner   Bakery dated 01/02/2024", "Corner Bakery"},
		{"labelled", "Debit alert. Merchant: Green Grocer", "Green Grocer"},
		{"too short", "Paid $5 to Bob", "<nil>"},
	}
	x := newTestExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := x.Extract(tc.text, nil)
			if got := strVal(res.Merchant); got != tc.want {
				t.Fatalf("expected merchant %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExtractDate(t *testing.T) {
	cases := []struct {
		name string
		text string
		want time.Time
		ok   bool
	}{
		{"slashes", "on 12/12/2024", time.Date(2024, 12, 12, 0, 0, 0, 0, time.UTC), true},
		{"dashes", "txn 01-02-2023", time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), true},
		{"two digit year", "Paid on 5-3-24", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"short month", "12 Dec 2024 purchase", time.Date(2024, 12, 12, 0, 0, 0, 0, time.UTC), true},
		{"long month", "3 September 2023", time.Date(2023, 9, 3, 0, 0, 0, 0, time.UTC), true},
		{"lower case month", "7 mar 2022", time.Date(2022, 3, 7, 0, 0, 0, 0, time.UTC), true},
		{"impossible date", "31/02/2024", fixedNow, false},
		{"no date", "coffee", fixedNow, false},
	}
	x := newTestExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := x.Extract(tc.text, nil)
			if !res.Date.Equal(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, res.Date)
			}
			wantConf := 0.0
			if tc.ok {
				wantConf = 0.2
			}
			if res.Confidence != wantConf {
				t.Fatalf("expected confidence %v, got %v", wantConf, res.Confidence)
			}
		})
	}
}

func TestExtractCategory(t *testing.T) {
	x := newTestExtractor()

	t.Run("keyword hit in known category", func(t *testing.T) {
		res := x.Extract("Transaction of $25.50 at UBER", []string{"Food & Dining", "Transportation"})
		if strVal(res.Category) != "Transportation" {
			t.Fatalf("expected Transportation, got %q", strVal(res.Category))
		}
		if res.Confidence != 0.8 {
			t.Fatalf("expected confidence 0.8, got %v", res.Confidence)
		}
	})

	t.Run("keyword category not owned falls back", func(t *testing.T) {
		res := x.Extract("Paid INR 300 to Netflix", []string{"Shopping"})
		if strVal(res.Category) != "Shopping" {
			t.Fatalf("expected fallback Shopping, got %q", strVal(res.Category))
		}
		if res.Confidence != 0.6 {
			t.Fatalf("fallback must not add confidence, got %v", res.Confidence)
		}
	})

	t.Run("table order wins", func(t *testing.T) {
		// "Food Store" hits Food & Dining before Shopping.
		res := x.Extract("Paid $12 at Food Store", []string{"Shopping", "Food & Dining"})
		if strVal(res.Category) != "Food & Dining" {
			t.Fatalf("expected Food & Dining, got %q", strVal(res.Category))
		}
	})

	t.Run("no merchant no inference", func(t *testing.T) {
		res := x.Extract("pizza $10", []string{"Healthcare", "Food & Dining"})
		if strVal(res.Category) != "Healthcare" {
			t.Fatalf("expected fallback Healthcare, got %q", strVal(res.Category))
		}
	})
}

func TestExtractWithLabel(t *testing.T) {
	x := newTestExtractor(WithLabel("Email"))
	res := x.Extract("Charged $9.99 by vendor: Spotify Premium", []string{"Entertainment"})
	if strVal(res.Description) != "Email transaction at Spotify Premium" {
		t.Fatalf("unexpected description %q", strVal(res.Description))
	}
	if strVal(res.Category) != "Entertainment" {
		t.Fatalf("expected Entertainment, got %q", strVal(res.Category))
	}
}

func TestPackageExtractUsesSMSLabel(t *testing.T) {
	res := Extract("Paid Rs 120 at Dunkin Donuts.", []string{"Food & Dining"})
	if strVal(res.Description) != "SMS transaction at Dunkin Donuts" {
		t.Fatalf("unexpected description %q", strVal(res.Description))
	}
}

func TestPlaceholder(t *testing.T) {
	res := Placeholder(KindReceipt, "lunch.jpg", []string{"Travel", "Shopping"}, fixedNow)
	if strVal(res.Merchant) != "Receipt Upload" || strVal(res.Description) != "Receipt uploaded: lunch.jpg" {
		t.Fatalf("unexpected receipt placeholder: %+v", res)
	}
	if strVal(res.Category) != "Travel" || res.Confidence != 0.5 || !res.Amount.IsZero() {
		t.Fatalf("unexpected receipt placeholder: %+v", res)
	}

	voice := Placeholder(KindVoice, "memo.m4a", nil, fixedNow)
	if strVal(voice.Merchant) != "Voice Entry" || voice.Category != nil {
		t.Fatalf("unexpected voice placeholder: %+v", voice)
	}
}

func TestKeywordCategoriesOrder(t *testing.T) {
	got := KeywordCategories()
	want := []string{"Food & Dining", "Transportation", "Shopping", "Entertainment", "Bills & Utilities", "Healthcare"}
	if len(got) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
