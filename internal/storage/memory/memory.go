// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	expenses map[string]core.Expense  // by id
	cats     map[string]core.Category // by id
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		expenses: make(map[string]core.Expense),
		cats:     make(map[string]core.Category),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// bump adjusts the count of the user's category named name. Caller holds mu.
func (s *Store) bump(userID, name string, delta int64) {
	for id, c := range s.cats {
		if c.UserID != userID || c.Name != name {
			continue
		}
		c.Count += delta
		if c.Count < 0 {
			c.Count = 0
		}
		s.cats[id] = c
		return
	}
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrConflict)
	}
	s.expenses[e.ID] = e
	s.bump(e.UserID, e.Category, +1)
	return nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.expenses[e.ID]
	if !ok || old.UserID != e.UserID {
		return fmt.Errorf("expense %s: %w", e.ID, storage.ErrNotFound)
	}
	e.CreatedAt = old.CreatedAt
	s.expenses[e.ID] = e
	if old.Category != e.Category {
		s.bump(e.UserID, old.Category, -1)
		s.bump(e.UserID, e.Category, +1)
	}
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, storage.ErrNotFound)
	}
	delete(s.expenses, id)
	s.bump(userID, e.Category, -1)
	return e, nil
}

// userExpenses returns the user's expenses matching keep, newest first.
// Caller holds mu.
func (s *Store) userExpenses(userID string, keep func(core.Expense) bool) []core.Expense {
	var out []core.Expense
	for _, e := range s.expenses {
		if e.UserID == userID && keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) ListExpenses(_ context.Context, userID string, f storage.ExpenseFilter) ([]core.Expense, error) {
	f = f.Normalize()

	s.mu.Lock()
	matched := s.userExpenses(userID, f.Match)
	s.mu.Unlock()

	if f.Skip >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Skip:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *Store) ExpensesBetween(_ context.Context, userID string, from, to time.Time) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userExpenses(userID, func(e core.Expense) bool {
		return !e.Date.Before(from) && !e.Date.After(to)
	}), nil
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Category
	for _, c := range s.cats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[id]
	if !ok || c.UserID != userID {
		return core.Category{}, fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

// nameTaken reports whether another category of the user is called name.
// Caller holds mu.
func (s *Store) nameTaken(userID, name, exceptID string) bool {
	for id, c := range s.cats {
		if id != exceptID && c.UserID == userID && c.Name == name {
			return true
		}
	}
	return false
}

// usage counts the user's expenses filed under name. Caller holds mu.
func (s *Store) usage(userID, name string) int64 {
	var n int64
	for _, e := range s.expenses {
		if e.UserID == userID && e.Category == name {
			n++
		}
	}
	return n
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cats[c.ID]; ok || s.nameTaken(c.UserID, c.Name, "") {
		return fmt.Errorf("category %q: %w", c.Name, storage.ErrConflict)
	}
	c.Count = s.usage(c.UserID, c.Name)
	s.cats[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.cats[c.ID]
	if !ok || old.UserID != c.UserID {
		return fmt.Errorf("category %s: %w", c.ID, storage.ErrNotFound)
	}
	if s.nameTaken(c.UserID, c.Name, c.ID) {
		return fmt.Errorf("category %q: %w", c.Name, storage.ErrConflict)
	}

	oldName := old.Name
	old.Name, old.Color, old.Icon = c.Name, c.Color, c.Icon

	if oldName != c.Name {
		for id, e := range s.expenses {
			if e.UserID == c.UserID && e.Category == oldName {
				e.Category = c.Name
				s.expenses[id] = e
			}
		}
		old.Count = s.usage(c.UserID, c.Name)
	}
	s.cats[c.ID] = old
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("category %s: %w", id, storage.ErrNotFound)
	}
	if n := s.usage(userID, c.Name); n > 0 {
		return fmt.Errorf("category %q has %d expenses: %w", c.Name, n, storage.ErrCategoryInUse)
	}
	delete(s.cats, id)
	return nil
}

func (s *Store) RecountCategories(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.cats {
		if c.UserID == userID {
			c.Count = s.usage(userID, c.Name)
			s.cats[id] = c
		}
	}
	return nil
}
