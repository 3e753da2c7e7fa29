// Package storagetest is a behavioural test suite shared by every
// storage.Store implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"moneytrack/internal/core"
	"moneytrack/internal/storage"
)

// Factory returns an empty store. Cleanup is the factory's business.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func expense(userID, category, amount, merchant string, day int) core.Expense {
	return core.Expense{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    decimal.RequireFromString(amount),
		Merchant:  merchant,
		Category:  category,
		Date:      base.AddDate(0, 0, day),
		Source:    core.SourceManual,
		CreatedAt: base,
	}
}

func category(userID, name string) core.Category {
	c := core.Category{ID: uuid.NewString(), UserID: userID, Name: name, CreatedAt: base}
	c.Normalize()
	return c
}

func counts(t *testing.T, s storage.Store, userID string) map[string]int64 {
	t.Helper()
	cats, err := s.ListCategories(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	out := make(map[string]int64, len(cats))
	for _, c := range cats {
		out[c.Name] = c.Count
	}
	return out
}

func wantCounts(t *testing.T, s storage.Store, userID string, want map[string]int64) {
	t.Helper()
	got := counts(t, s, userID)
	if len(got) != len(want) {
		t.Fatalf("counts = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("counts = %v, want %v", got, want)
		}
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ExpenseRoundTrip", func(t *testing.T) { testExpenseRoundTrip(t, newStore(t)) })
	t.Run("CategoryCounts", func(t *testing.T) { testCategoryCounts(t, newStore(t)) })
	t.Run("UserIsolation", func(t *testing.T) { testUserIsolation(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("ExpensesBetween", func(t *testing.T) { testExpensesBetween(t, newStore(t)) })
	t.Run("CategoryLifecycle", func(t *testing.T) { testCategoryLifecycle(t, newStore(t)) })
	t.Run("Recount", func(t *testing.T) { testRecount(t, newStore(t)) })
}

func testExpenseRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := expense("u1", "Travel", "1234.56", "Rail Co", 0)
	e.Description = "tickets"
	e.Source = core.SourceSMS

	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if err := s.CreateExpense(ctx, e); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate id: expected ErrConflict, got %v", err)
	}

	got, err := s.GetExpense(ctx, "u1", e.ID)
	if err != nil {
		t.Fatalf("GetExpense: %v", err)
	}
	if !got.Amount.Equal(e.Amount) || got.Merchant != e.Merchant || got.Category != e.Category ||
		!got.Date.Equal(e.Date) || got.Source != e.Source || got.Description != e.Description ||
		!got.CreatedAt.Equal(e.CreatedAt) || !got.UpdatedAt.IsZero() {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, e)
	}

	got.Amount = decimal.RequireFromString("10.05")
	got.Merchant = "Rail Company"
	got.UpdatedAt = base.Add(time.Hour)
	if err := s.UpdateExpense(ctx, got); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	again, _ := s.GetExpense(ctx, "u1", e.ID)
	if !again.Amount.Equal(got.Amount) || again.Merchant != "Rail Company" || !again.UpdatedAt.Equal(got.UpdatedAt) {
		t.Fatalf("update not persisted: %+v", again)
	}

	deleted, err := s.DeleteExpense(ctx, "u1", e.ID)
	if err != nil || deleted.ID != e.ID {
		t.Fatalf("DeleteExpense = %+v, %v", deleted, err)
	}
	if _, err := s.GetExpense(ctx, "u1", e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.DeleteExpense(ctx, "u1", e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	missing := expense("u1", "Travel", "1", "Nobody", 0)
	if err := s.UpdateExpense(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing: expected ErrNotFound, got %v", err)
	}
}

func testCategoryCounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, name := range []string{"Food & Dining", "Travel"} {
		if err := s.CreateCategory(ctx, category("u1", name)); err != nil {
			t.Fatalf("CreateCategory(%s): %v", name, err)
		}
	}

	a := expense("u1", "Food & Dining", "10", "Cafe Uno", 0)
	b := expense("u1", "Food & Dining", "20", "Cafe Due", 1)
	c := expense("u1", "Travel", "30", "Airline", 2)
	orphan := expense("u1", "Unfiled", "5", "Kiosk", 3)
	for _, e := range []core.Expense{a, b, c, orphan} {
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}
	wantCounts(t, s, "u1", map[string]int64{"Food & Dining": 2, "Travel": 1})

	b.Category = "Travel"
	if err := s.UpdateExpense(ctx, b); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	wantCounts(t, s, "u1", map[string]int64{"Food & Dining": 1, "Travel": 2})

	b.Merchant = "Cafe Tre"
	if err := s.UpdateExpense(ctx, b); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	wantCounts(t, s, "u1", map[string]int64{"Food & Dining": 1, "Travel": 2})

	if _, err := s.DeleteExpense(ctx, "u1", a.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	wantCounts(t, s, "u1", map[string]int64{"Food & Dining": 0, "Travel": 2})

	// A category created after the fact picks up existing expenses.
	if err := s.CreateCategory(ctx, category("u1", "Unfiled")); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	wantCounts(t, s, "u1", map[string]int64{"Food & Dining": 0, "Travel": 2, "Unfiled": 1})
}

func testUserIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.CreateCategory(ctx, category("u1", "Travel")); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCategory(ctx, category("u2", "Travel")); err != nil {
		t.Fatalf("same name for another user must be allowed: %v", err)
	}

	e := expense("u1", "Travel", "10", "Airline", 0)
	if err := s.CreateExpense(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetExpense(ctx, "u2", e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("u2 must not see u1's expense, got %v", err)
	}
	if _, err := s.DeleteExpense(ctx, "u2", e.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("u2 must not delete u1's expense, got %v", err)
	}
	list, _ := s.ListExpenses(ctx, "u2", storage.ExpenseFilter{})
	if len(list) != 0 {
		t.Fatalf("u2 listing leaked %d expenses", len(list))
	}
	wantCounts(t, s, "u1", map[string]int64{"Travel": 1})
	wantCounts(t, s, "u2", map[string]int64{"Travel": 0})
}

func testListFilters(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seed := []core.Expense{
		expense("u1", "Food & Dining", "10", "Starbucks", 0),
		expense("u1", "Food & Dining", "11", "Pizza Place", 1),
		expense("u1", "Shopping", "12", "Amazon", 2),
		expense("u1", "Travel", "13", "Airline", 3),
		expense("u1", "Travel", "14", "Hotel 100% Fun", 4),
	}
	seed[2].Source = core.SourceSMS
	seed[3].Description = "Flight to AMSTERDAM"
	for _, e := range seed {
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	ids := func(list []core.Expense) string {
		out := ""
		for _, e := range list {
			out += e.Merchant + ";"
		}
		return out
	}

	tests := []struct {
		name   string
		filter storage.ExpenseFilter
		want   string
	}{
		{"all newest first", storage.ExpenseFilter{}, "Hotel 100% Fun;Airline;Amazon;Pizza Place;Starbucks;"},
		{"category", storage.ExpenseFilter{Category: "Food & Dining"}, "Pizza Place;Starbucks;"},
		{"source", storage.ExpenseFilter{Source: core.SourceSMS}, "Amazon;"},
		{"date range inclusive", storage.ExpenseFilter{StartDate: base.AddDate(0, 0, 1), EndDate: base.AddDate(0, 0, 3)}, "Airline;Amazon;Pizza Place;"},
		{"search merchant", storage.ExpenseFilter{Search: "STAR"}, "Starbucks;"},
		{"search description", storage.ExpenseFilter{Search: "amsterdam"}, "Airline;"},
		{"search is literal", storage.ExpenseFilter{Search: "100%"}, "Hotel 100% Fun;"},
		{"paging", storage.ExpenseFilter{Skip: 1, Limit: 2}, "Airline;Amazon;"},
		{"skip past end", storage.ExpenseFilter{Skip: 10}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListExpenses(ctx, "u1", tt.filter)
			if err != nil {
				t.Fatalf("ListExpenses: %v", err)
			}
			if ids(got) != tt.want {
				t.Fatalf("got %q, want %q", ids(got), tt.want)
			}
		})
	}
}

func testExpensesBetween(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.CreateExpense(ctx, expense("u1", "X", fmt.Sprint(i+1), fmt.Sprintf("Shop %d", i), i)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ExpensesBetween(ctx, "u1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ExpensesBetween: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 expenses in the inclusive window, got %d", len(got))
	}
	for _, e := range got {
		if e.Date.Before(base.AddDate(0, 0, 1)) || e.Date.After(base.AddDate(0, 0, 3)) {
			t.Fatalf("expense outside window: %v", e.Date)
		}
	}
}

func testCategoryLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	food := category("u1", "Food")
	if err := s.CreateCategory(ctx, food); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCategory(ctx, category("u1", "Food")); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	other := category("u1", "Other")
	if err := s.CreateCategory(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCategory(ctx, "u1", food.ID)
	if err != nil || got.Name != "Food" || got.Color != core.DefaultCategoryColor || got.Icon != core.DefaultCategoryIcon {
		t.Fatalf("GetCategory = %+v, %v", got, err)
	}
	if _, err := s.GetCategory(ctx, "u2", food.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign user: expected ErrNotFound, got %v", err)
	}

	e1 := expense("u1", "Food", "10", "Bakery", 0)
	e2 := expense("u2", "Food", "10", "Bakery", 0)
	for _, e := range []core.Expense{e1, e2} {
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	rename := food
	rename.Name = "Other"
	if err := s.UpdateCategory(ctx, rename); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("rename onto existing name: expected ErrConflict, got %v", err)
	}

	rename.Name = "Groceries"
	rename.Color = "#112233"
	if err := s.UpdateCategory(ctx, rename); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	moved, _ := s.GetExpense(ctx, "u1", e1.ID)
	if moved.Category != "Groceries" {
		t.Fatalf("rename did not cascade, category = %q", moved.Category)
	}
	untouched, _ := s.GetExpense(ctx, "u2", e2.ID)
	if untouched.Category != "Food" {
		t.Fatalf("rename leaked to another user: %q", untouched.Category)
	}
	wantCounts(t, s, "u1", map[string]int64{"Groceries": 1, "Other": 0})

	if err := s.DeleteCategory(ctx, "u1", food.ID); !errors.Is(err, storage.ErrCategoryInUse) {
		t.Fatalf("delete in use: expected ErrCategoryInUse, got %v", err)
	}
	if _, err := s.DeleteExpense(ctx, "u1", e1.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCategory(ctx, "u1", food.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	if err := s.DeleteCategory(ctx, "u1", food.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateCategory(ctx, rename); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update deleted: expected ErrNotFound, got %v", err)
	}

	cats, _ := s.ListCategories(ctx, "u1")
	if len(cats) != 1 || cats[0].Name != "Other" {
		t.Fatalf("unexpected categories %+v", cats)
	}

	// Renaming onto a name that uncategorized expenses already carry.
	old := category("u1", "Old")
	if err := s.CreateCategory(ctx, old); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Old", "New", "New"} {
		if err := s.CreateExpense(ctx, expense("u1", name, "3", "Kiosk", 1)); err != nil {
			t.Fatal(err)
		}
	}
	old.Name = "New"
	if err := s.UpdateCategory(ctx, old); err != nil {
		t.Fatalf("UpdateCategory: %v", err)
	}
	wantCounts(t, s, "u1", map[string]int64{"New": 3, "Other": 0})
}

func testRecount(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		if err := s.CreateCategory(ctx, category("u1", name)); err != nil {
			t.Fatal(err)
		}
	}
	for i, name := range []string{"A", "A", "B"} {
		if err := s.CreateExpense(ctx, expense("u1", name, "1", fmt.Sprintf("Shop %d", i), i)); err != nil {
			t.Fatal(err)
		}
	}
	before := counts(t, s, "u1")
	if err := s.RecountCategories(ctx, "u1"); err != nil {
		t.Fatalf("RecountCategories: %v", err)
	}
	after := counts(t, s, "u1")
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("incremental counts %v disagree with recount %v", before, after)
		}
	}
	wantCounts(t, s, "u1", map[string]int64{"A": 2, "B": 1, "C": 0})
}
