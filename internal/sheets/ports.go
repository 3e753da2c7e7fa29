// Package sheets defines the spreadsheet export port. The Google Sheets
// adapter lives in sheets/google.
package sheets

import (
	"context"

	"moneytrack/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseExporter appends one expense per row.
	ExpenseExporter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExportIndex tells whether an expense already has a row, so redelivered
	// events do not duplicate it.
	ExportIndex interface {
		Exported(ctx context.Context, expenseID string) (bool, error)
	}

	Exporter interface {
		ExpenseExporter
		ExportIndex
	}
)

// Header is the first row of the export sheet.
var Header = []string{"Date", "Merchant", "Category", "Amount", "Source", "Description", "ID"}

// DateLayout formats the Date column.
const DateLayout = "2006-01-02"

// Row renders e in Header order.
func Row(e core.Expense) []any {
	return []any{
		e.Date.UTC().Format(DateLayout),
		e.Merchant,
		e.Category,
		e.Amount.StringFixed(2),
		e.Source.String(),
		e.Description,
		e.ID,
	}
}
