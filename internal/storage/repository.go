package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneytrack/internal/core"
	"moneytrack/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so lexical order in SQLite equals time order.
// Values are always written in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db     *sql.DB
	logger *log.Logger
}

var _ Store = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; transactions hold the only connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("SQLite store ready", "db_path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, logger: logger}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, committing on success.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// bumpCount adds delta to the named category's count, never going below zero.
// A name without a category row is a no-op: expenses reference categories
// softly by name.
func bumpCount(ctx context.Context, tx *sql.Tx, userID, name string, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE categories SET count = MAX(count + ?, 0) WHERE user_id = ? AND name = ?`,
		delta, userID, name)
	if err != nil {
		return fmt.Errorf("adjust count of category %q: %w", name, err)
	}
	return nil
}

// Expenses

const expenseColumns = `id, user_id, amount, merchant, category, date, source, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e                    core.Expense
		amount, date, src    string
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &amount, &e.Merchant, &e.Category, &date, &src,
		&e.Description, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: bad amount %q: %w", e.ID, amount, err)
	}
	if e.Date, err = parseTime(date); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: bad date: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: bad created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: bad updated_at: %w", e.ID, err)
	}
	e.Source = core.Source(src)
	return e, nil
}

func collectExpenses(rows *sql.Rows) ([]core.Expense, error) {
	defer rows.Close()
	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.UserID, e.Amount.String(), e.Merchant, e.Category, formatTime(e.Date),
			string(e.Source), e.Description, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("expense %s: %w", e.ID, ErrConflict)
			}
			return fmt.Errorf("insert expense: %w", err)
		}
		return bumpCount(ctx, tx, e.UserID, e.Category, +1)
	})
	if err != nil {
		return err
	}

	r.logger.DebugContext(ctx, "Expense inserted", log.FieldExpenseID, e.ID, log.FieldUserID, e.UserID)
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var oldCategory string
		err := tx.QueryRowContext(ctx,
			`SELECT category FROM expenses WHERE user_id = ? AND id = ?`, e.UserID, e.ID).Scan(&oldCategory)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %s: %w", e.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load expense: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE expenses
			SET amount = ?, merchant = ?, category = ?, date = ?, source = ?, description = ?, updated_at = ?
			WHERE user_id = ? AND id = ?`,
			e.Amount.String(), e.Merchant, e.Category, formatTime(e.Date), string(e.Source),
			e.Description, formatTime(e.UpdatedAt), e.UserID, e.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}

		if oldCategory == e.Category {
			return nil
		}
		if err := bumpCount(ctx, tx, e.UserID, oldCategory, -1); err != nil {
			return err
		}
		return bumpCount(ctx, tx, e.UserID, e.Category, +1)
	})
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) (core.Expense, error) {
	var deleted core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
		e, err := scanExpense(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load expense: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete expense: %w", err)
		}
		deleted = e
		return bumpCount(ctx, tx, userID, e.Category, -1)
	})
	return deleted, err
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, f ExpenseFilter) ([]core.Expense, error) {
	f = f.Normalize()

	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if !f.StartDate.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, formatTime(f.EndDate))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		where = append(where, `(lower(merchant) LIKE ? ESCAPE '\' OR lower(description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	args = append(args, f.Limit, f.Skip)

	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, created_at DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return collectExpenses(rows)
}

func (r *SQLiteRepository) ExpensesBetween(ctx context.Context, userID string, from, to time.Time) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date DESC`,
		userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("query expenses in window: %w", err)
	}
	return collectExpenses(rows)
}

// Categories

const categoryColumns = `id, user_id, name, color, icon, count, created_at`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c         core.Category
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.Icon, &c.Count, &createdAt); err != nil {
		return core.Category{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Category{}, fmt.Errorf("category %s: bad created_at: %w", c.ID, err)
	}
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? AND id = ?`, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		// Expenses may already carry this name.
		var count int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM expenses WHERE user_id = ? AND category = ?`, c.UserID, c.Name).Scan(&count); err != nil {
			return fmt.Errorf("count expenses: %w", err)
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.UserID, c.Name, c.Color, c.Icon, count, formatTime(c.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
			}
			return fmt.Errorf("insert category: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var oldName string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM categories WHERE user_id = ? AND id = ?`, c.UserID, c.ID).Scan(&oldName)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %s: %w", c.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load category: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE categories SET name = ?, color = ?, icon = ? WHERE user_id = ? AND id = ?`,
			c.Name, c.Color, c.Icon, c.UserID, c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
			}
			return fmt.Errorf("update category: %w", err)
		}

		if oldName == c.Name {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET category = ? WHERE user_id = ? AND category = ?`, c.Name, c.UserID, oldName)
		if err != nil {
			return fmt.Errorf("rename category on expenses: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			r.logger.InfoContext(ctx, "Category rename cascaded",
				log.FieldUserID, c.UserID, "from", oldName, "to", c.Name, "expenses", n)
		}

		// Expenses may already have been filed under the new name.
		_, err = tx.ExecContext(ctx,
			`UPDATE categories SET count = (SELECT COUNT(*) FROM expenses WHERE user_id = ? AND category = ?)
			 WHERE user_id = ? AND id = ?`,
			c.UserID, c.Name, c.UserID, c.ID)
		if err != nil {
			return fmt.Errorf("recount renamed category: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var name string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM categories WHERE user_id = ? AND id = ?`, userID, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load category: %w", err)
		}

		var inUse int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM expenses WHERE user_id = ? AND category = ?`, userID, name).Scan(&inUse); err != nil {
			return fmt.Errorf("count expenses: %w", err)
		}
		if inUse > 0 {
			return fmt.Errorf("category %q has %d expenses: %w", name, inUse, ErrCategoryInUse)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) RecountCategories(ctx context.Context, userID string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE categories
			SET count = (
				SELECT COUNT(*) FROM expenses
				WHERE expenses.user_id = categories.user_id AND expenses.category = categories.name
			)
			WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("recount categories: %w", err)
		}
		return nil
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
