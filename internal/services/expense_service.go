package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneytrack/internal/amqp"
	"moneytrack/internal/analytics"
	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/storage"
)

// ExpensePatch lists the attributes to change; nil fields are left alone.
type ExpensePatch struct {
	Amount      *decimal.Decimal
	Merchant    *string
	Category    *string
	Date        *time.Time
	Description *string
}

// ExpenseService orchestrates expense writes across the store, the stats
// cache and the event publisher.
type ExpenseService struct {
	store  storage.Store
	cats   *CategoryService
	cfg    Config
	logger *log.Logger
	events *log.StructuredLogger
}

func NewExpenseService(store storage.Store, cats *CategoryService, cfg Config) *ExpenseService {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.WithComponent(log.ComponentExpense)
	return &ExpenseService{
		store:  store,
		cats:   cats,
		cfg:    cfg,
		logger: logger,
		events: log.NewStructuredLogger(logger),
	}
}

func normalizeExpense(e *core.Expense) {
	e.Merchant = strings.TrimSpace(e.Merchant)
	e.Category = strings.TrimSpace(e.Category)
	e.Description = strings.TrimSpace(e.Description)
	e.Amount = core.Round2(e.Amount)
}

// Create validates and stores e, filling id, timestamps and the default
// source. The category count is bumped in the same store transaction.
func (s *ExpenseService) Create(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.Source == "" {
		e.Source = core.SourceManual
	}
	normalizeExpense(&e)
	e.ID = s.cfg.NewID()
	e.CreatedAt = s.cfg.Clock()
	e.UpdatedAt = time.Time{}
	if err := e.Validate(); err != nil {
		return core.Expense{}, invalid(err)
	}

	if err := s.store.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.afterWrite(ctx, amqp.EventCreated, e, log.OpCreate)
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// Update applies patch to a stored expense. Moving it to another category
// keeps both category counts consistent.
func (s *ExpenseService) Update(ctx context.Context, userID, id string, patch ExpensePatch) (core.Expense, error) {
	e, err := s.Get(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}

	if patch.Amount != nil {
		e.Amount = *patch.Amount
	}
	if patch.Merchant != nil {
		e.Merchant = *patch.Merchant
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	normalizeExpense(&e)
	e.UpdatedAt = s.cfg.Clock()
	if err := e.Validate(); err != nil {
		return core.Expense{}, invalid(err)
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.afterWrite(ctx, amqp.EventUpdated, e, log.OpUpdate)
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	e, err := s.store.DeleteExpense(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.afterWrite(ctx, amqp.EventDeleted, e, log.OpDelete)
	return nil
}

// List returns the user's expenses matching f, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string, f storage.ExpenseFilter) ([]core.Expense, error) {
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return nil, invalid(errors.New("end_date is before start_date"))
	}
	out, err := s.store.ListExpenses(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

// Stats computes the dashboard for rangeParam ("7days" when empty). Results
// are cached per user and range until the next write of that user.
func (s *ExpenseService) Stats(ctx context.Context, userID, rangeParam string) (analytics.Stats, error) {
	r, err := analytics.ParseRange(rangeParam)
	if err != nil {
		return analytics.Stats{}, invalid(err)
	}

	load := func() (analytics.Stats, error) { return s.computeStats(ctx, userID, r) }
	if s.cfg.StatsCache == nil {
		return load()
	}
	return s.cfg.StatsCache.GetOrLoad(statsKey(userID, r), load)
}

func (s *ExpenseService) computeStats(ctx context.Context, userID string, r analytics.Range) (analytics.Stats, error) {
	now := s.cfg.Clock()
	prevStart, _, end := r.Bounds(now)
	expenses, err := s.store.ExpensesBetween(ctx, userID, prevStart, end)
	if err != nil {
		return analytics.Stats{}, fmt.Errorf("load expenses: %w", err)
	}
	cats, err := s.cats.List(ctx, userID)
	if err != nil {
		return analytics.Stats{}, err
	}

	stats, err := analytics.Aggregate(expenses, r, core.CategoryColors(cats), now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard aggregation failed",
			log.FieldUserID, userID, log.FieldRange, string(r), log.FieldError, err)
		return analytics.Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return stats, nil
}

// afterWrite runs the side effects of a committed write. Publishing is best
// effort: the expense is already stored.
func (s *ExpenseService) afterWrite(ctx context.Context, t amqp.EventType, e core.Expense, op string) {
	invalidateStats(s.cfg.StatsCache, s.logger, e.UserID)
	s.events.LogExpenseSaved(ctx, op, e.UserID, e.ID, e.Amount.StringFixed(2), e.Category, e.Source.String())

	if s.cfg.Publisher == nil {
		return
	}
	ev := amqp.NewExpenseEvent(t, e.UserID, e.ID, s.cfg.Clock())
	if err := s.cfg.Publisher.PublishExpenseEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish expense event",
			log.FieldEventType, t, log.FieldExpenseID, e.ID, log.FieldError, err)
	}
}
