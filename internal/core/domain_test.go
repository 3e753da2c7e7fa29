package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validExpense() Expense {
	return Expense{
		UserID:   "u1",
		Amount:   decimal.NewFromInt(10),
		Merchant: "Starbucks",
		Category: "Food & Dining",
		Date:     time.Date(2024, 12, 12, 0, 0, 0, 0, time.UTC),
		Source:   SourceManual,
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := validExpense().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Expense)
		want   error
	}{
		{"missing user", func(e *Expense) { e.UserID = " " }, ErrEmptyUser},
		{"zero amount", func(e *Expense) { e.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(e *Expense) { e.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"empty merchant", func(e *Expense) { e.Merchant = "" }, ErrEmptyMerchant},
		{"empty category", func(e *Expense) { e.Category = "" }, ErrEmptyCategory},
		{"zero date", func(e *Expense) { e.Date = time.Time{} }, ErrZeroDate},
		{"bad source", func(e *Expense) { e.Source = "fax" }, ErrInvalidSource},
		{"long description", func(e *Expense) {
			b := make([]rune, MaxDescriptionLen+1)
			for i := range b {
				b[i] = 'x'
			}
			e.Description = string(b)
		}, ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validExpense()
			tc.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseSource(t *testing.T) {
	for _, in := range []string{"manual", "SMS", " receipt ", "Voice"} {
		if _, err := ParseSource(in); err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
	}
	if _, err := ParseSource("email"); !errors.Is(err, ErrInvalidSource) {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
}

func TestCategoryNormalizeAndValidate(t *testing.T) {
	c := Category{UserID: "u1", Name: "  Pets "}
	c.Normalize()
	if c.Name != "Pets" || c.Color != DefaultCategoryColor || c.Icon != DefaultCategoryIcon {
		t.Fatalf("unexpected normalized category: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	c.Color = "blue"
	if err := c.Validate(); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories("u9")
	if len(cats) != 8 {
		t.Fatalf("expected 8 default categories, got %d", len(cats))
	}
	for _, c := range cats {
		if c.UserID != "u9" {
			t.Fatalf("category %q not owned by user", c.Name)
		}
		if err := c.Validate(); err != nil {
			t.Fatalf("default category %q invalid: %v", c.Name, err)
		}
	}
	cats[0].Name = "mutated"
	if DefaultCategories("u9")[0].Name != "Food & Dining" {
		t.Fatalf("DefaultCategories must return a copy")
	}
	if names := CategoryNames(cats[1:3]); names[0] != "Transportation" || names[1] != "Shopping" {
		t.Fatalf("unexpected names: %v", names)
	}
}
