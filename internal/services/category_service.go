package services

import (
	"context"
	"errors"
	"fmt"

	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/storage"
)

// CategoryPatch lists the attributes to change; nil fields are left alone.
type CategoryPatch struct {
	Name  *string
	Color *string
	Icon  *string
}

// CategoryService manages a user's categories.
type CategoryService struct {
	store  storage.CategoryStore
	cfg    Config
	logger *log.Logger
}

func NewCategoryService(store storage.CategoryStore, cfg Config) *CategoryService {
	cfg = cfg.withDefaults()
	return &CategoryService{
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger.WithComponent(log.ComponentCategory),
	}
}

// List returns the user's categories ordered by name. A user without any
// category gets the starter set first.
func (s *CategoryService) List(ctx context.Context, userID string) ([]core.Category, error) {
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(cats) > 0 {
		return cats, nil
	}

	if err := s.seed(ctx, userID); err != nil {
		return nil, err
	}
	cats, err = s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) seed(ctx context.Context, userID string) error {
	now := s.cfg.Clock()
	for _, c := range core.DefaultCategories(userID) {
		c.ID = s.cfg.NewID()
		c.CreatedAt = now
		// A concurrent request may have seeded the same names already.
		if err := s.store.CreateCategory(ctx, c); err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}
	s.logger.InfoContext(ctx, "Default categories created", log.FieldUserID, userID)
	return nil
}

func (s *CategoryService) Get(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := s.store.GetCategory(ctx, userID, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// Create stores a new category. Its count starts at the number of the user's
// expenses already filed under that name.
func (s *CategoryService) Create(ctx context.Context, c core.Category) (core.Category, error) {
	c.Normalize()
	c.ID = s.cfg.NewID()
	c.CreatedAt = s.cfg.Clock()
	c.Count = 0
	if err := c.Validate(); err != nil {
		return core.Category{}, invalid(err)
	}

	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	invalidateStats(s.cfg.StatsCache, s.logger, c.UserID)

	s.logger.InfoContext(ctx, "Category created",
		log.FieldUserID, c.UserID, log.FieldCategory, c.Name, log.FieldOperation, log.OpCreate)
	return s.Get(ctx, c.UserID, c.ID)
}

// Update applies patch. Renaming moves every expense of the user from the
// old name to the new one.
func (s *CategoryService) Update(ctx context.Context, userID, id string, patch CategoryPatch) (core.Category, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return core.Category{}, err
	}
	oldName := c.Name

	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Color != nil {
		c.Color = *patch.Color
	}
	if patch.Icon != nil {
		c.Icon = *patch.Icon
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return core.Category{}, invalid(err)
	}

	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	invalidateStats(s.cfg.StatsCache, s.logger, userID)

	s.logger.InfoContext(ctx, "Category updated",
		log.FieldUserID, userID, log.FieldCategory, c.Name, "previous_name", oldName, log.FieldOperation, log.OpUpdate)
	return s.Get(ctx, userID, id)
}

// Delete removes a category that no expense uses anymore.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteCategory(ctx, userID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	invalidateStats(s.cfg.StatsCache, s.logger, userID)

	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldUserID, userID, "category_id", id, log.FieldOperation, log.OpDelete)
	return nil
}

// Recount rebuilds the user's category counts from the stored expenses.
func (s *CategoryService) Recount(ctx context.Context, userID string) error {
	if err := s.store.RecountCategories(ctx, userID); err != nil {
		return fmt.Errorf("recount categories: %w", err)
	}
	s.logger.InfoContext(ctx, "Category counts rebuilt", log.FieldUserID, userID, log.FieldOperation, log.OpRecount)
	return nil
}
