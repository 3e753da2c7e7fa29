// Package storage persists expenses and categories.
//
// Two implementations satisfy Store: the SQLite repository in this package and
// the in-memory store in storage/memory. Both keep every category's Count in
// step with the expenses that reference it by name: the adjustment happens in
// the same transaction (or under the same lock) as the expense write.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"moneytrack/internal/core"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrCategoryInUse = errors.New("category is used by existing expenses")
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Store is the persistence port used by the services.
type Store interface {
	ExpenseStore
	CategoryStore
	Ping(ctx context.Context) error
	Close() error
}

type ExpenseStore interface {
	// CreateExpense inserts e and increments the count of its category.
	CreateExpense(ctx context.Context, e core.Expense) error
	GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	// UpdateExpense replaces a stored expense. When the category changes the
	// old category count is decremented and the new one incremented.
	UpdateExpense(ctx context.Context, e core.Expense) error
	// DeleteExpense removes the expense and decrements its category count.
	DeleteExpense(ctx context.Context, userID, id string) (core.Expense, error)
	// ListExpenses returns matching expenses, newest first.
	ListExpenses(ctx context.Context, userID string, f ExpenseFilter) ([]core.Expense, error)
	// ExpensesBetween returns every expense dated within [from, to].
	ExpensesBetween(ctx context.Context, userID string, from, to time.Time) ([]core.Expense, error)
}

type CategoryStore interface {
	// ListCategories returns the user's categories ordered by name.
	ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	GetCategory(ctx context.Context, userID, id string) (core.Category, error)
	// CreateCategory fails with ErrConflict when the name is taken.
	CreateCategory(ctx context.Context, c core.Category) error
	// UpdateCategory stores new attributes for c. A rename is applied to
	// every expense of the user that referenced the old name.
	UpdateCategory(ctx context.Context, c core.Category) error
	// DeleteCategory fails with ErrCategoryInUse while expenses reference it.
	DeleteCategory(ctx context.Context, userID, id string) error
	// RecountCategories recomputes every count of the user from the expenses.
	RecountCategories(ctx context.Context, userID string) error
}

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	Category  string
	Source    core.Source
	StartDate time.Time
	EndDate   time.Time
	// Search matches merchant or description, case-insensitively.
	Search string
	Skip   int
	Limit  int
}

// Normalize clamps paging to sane values.
func (f ExpenseFilter) Normalize() ExpenseFilter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Match reports whether e satisfies every non-paging constraint of f.
func (f ExpenseFilter) Match(e core.Expense) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if !f.StartDate.IsZero() && e.Date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && e.Date.After(f.EndDate) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Merchant), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			return false
		}
	}
	return true
}
