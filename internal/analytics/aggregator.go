// Package analytics computes dashboard statistics over a user's expenses.
//
// Aggregate is a pure function of its inputs: it performs no I/O and keeps no
// state, so the same inputs (including now) always produce the same Stats.
package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"moneytrack/internal/core"
)

const (
	Range7Days  Range = "7days"
	Range30Days Range = "30days"
	Range90Days Range = "90days"
	RangeYear   Range = "year"
)

const (
	// FallbackCategoryColor is used for categories without a registered color.
	FallbackCategoryColor = "#6b7280"
	fallbackSourceColor   = "bg-gray-500"
	recentLimit           = 5
	trendLabelLayout      = "Jan 02"
)

var (
	ErrInvalidRange = errors.New("invalid range, expected 7days, 30days, 90days or year")
	// ErrCorruptRecord marks an expense missing a field the aggregation needs.
	ErrCorruptRecord = errors.New("corrupt expense record")
)

var sourceColors = map[core.Source]string{
	core.SourceSMS:     "bg-blue-500",
	core.SourceReceipt: "bg-green-500",
	core.SourceVoice:   "bg-purple-500",
	core.SourceManual:  "bg-orange-500",
}

var hundred = decimal.NewFromInt(100)

// Range selects the trailing window length.
type Range string

// ParseRange validates a raw range selector. Empty input means 7days.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.TrimSpace(s)); r {
	case "":
		return Range7Days, nil
	case Range7Days, Range30Days, Range90Days, RangeYear:
		return r, nil
	default:
		return "", ErrInvalidRange
	}
}

// Days returns the window length in days.
func (r Range) Days() int {
	switch r {
	case Range30Days:
		return 30
	case Range90Days:
		return 90
	case RangeYear:
		return 365
	default:
		return 7
	}
}

// Bounds returns the start of the prior window, the start of the current
// window and its end. The current window is [start, end]; the prior one is
// [prevStart, start).
func (r Range) Bounds(now time.Time) (prevStart, start, end time.Time) {
	window := time.Duration(r.Days()) * 24 * time.Hour
	start = now.Add(-window)
	return start.Add(-window), start, now
}

type (
	CategoryStat struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
		Color string  `json:"color"`
		Count int     `json:"count"`
	}

	SourceStat struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
		Color string `json:"color"`
	}

	TrendPoint struct {
		Date   string  `json:"date"`
		Amount float64 `json:"amount"`
	}

	RecentTransaction struct {
		ID       string    `json:"id"`
		Merchant string    `json:"merchant"`
		Amount   float64   `json:"amount"`
		Category string    `json:"category"`
		Date     time.Time `json:"date"`
		Source   string    `json:"source"`
	}

	// Stats is the dashboard payload. JSON names follow the web client.
	Stats struct {
		TotalExpenses      float64             `json:"totalExpenses"`
		ChangePercent      float64             `json:"monthlyChange"`
		TransactionCount   int                 `json:"transactionCount"`
		CategoryBreakdown  []CategoryStat      `json:"categoryBreakdown"`
		SourceBreakdown    []SourceStat        `json:"sourceBreakdown"`
		Trend              []TrendPoint        `json:"trendData"`
		RecentTransactions []RecentTransaction `json:"recentTransactions"`
	}
)

// Aggregate computes dashboard statistics for the window selected by r and
// ending at now. expenses should cover [prevStart, now] as returned by
// r.Bounds; anything outside both windows is ignored. A record with a missing
// amount, category, date or source fails the whole call with ErrCorruptRecord.
func Aggregate(expenses []core.Expense, r Range, categoryColors map[string]string, now time.Time) (Stats, error) {
	if _, err := ParseRange(string(r)); err != nil {
		return Stats{}, err
	}
	for i := range expenses {
		if err := checkRecord(expenses[i]); err != nil {
			return Stats{}, err
		}
	}

	prevStart, start, end := r.Bounds(now)
	var current []core.Expense
	curTotal, prevTotal := decimal.Zero, decimal.Zero
	for _, e := range expenses {
		switch {
		case !e.Date.Before(start) && !e.Date.After(end):
			current = append(current, e)
			curTotal = curTotal.Add(e.Amount)
		case !e.Date.Before(prevStart) && e.Date.Before(start):
			prevTotal = prevTotal.Add(e.Amount)
		}
	}

	return Stats{
		TotalExpenses:      core.Float2(curTotal),
		ChangePercent:      core.Float2(changePercent(curTotal, prevTotal)),
		TransactionCount:   len(current),
		CategoryBreakdown:  categoryBreakdown(current, categoryColors),
		SourceBreakdown:    sourceBreakdown(current),
		Trend:              trend(current, r.Days(), now),
		RecentTransactions: recent(current),
	}, nil
}

func checkRecord(e core.Expense) error {
	var missing []string
	if !e.Amount.IsPositive() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(e.Category) == "" {
		missing = append(missing, "category")
	}
	if e.Date.IsZero() {
		missing = append(missing, "date")
	}
	if e.Source == "" {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: expense %q has invalid %s", ErrCorruptRecord, e.ID, strings.Join(missing, ", "))
	}
	return nil
}

// changePercent compares the current total with the prior one. A prior total
// of zero yields 100 when anything was spent now and 0 otherwise.
func changePercent(cur, prev decimal.Decimal) decimal.Decimal {
	switch {
	case prev.IsPositive():
		return cur.Sub(prev).Div(prev).Mul(hundred)
	case cur.IsPositive():
		return hundred
	default:
		return decimal.Zero
	}
}

func categoryBreakdown(current []core.Expense, colors map[string]string) []CategoryStat {
	type bucket struct {
		name  string
		total decimal.Decimal
		count int
	}
	var buckets []*bucket
	index := make(map[string]*bucket)
	for _, e := range current {
		b, ok := index[e.Category]
		if !ok {
			b = &bucket{name: e.Category, total: decimal.Zero}
			index[e.Category] = b
			buckets = append(buckets, b)
		}
		b.total = b.total.Add(e.Amount)
		b.count++
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].total.GreaterThan(buckets[j].total)
	})

	out := make([]CategoryStat, 0, len(buckets))
	for _, b := range buckets {
		color, ok := colors[b.name]
		if !ok || color == "" {
			color = FallbackCategoryColor
		}
		out = append(out, CategoryStat{
			Name:  b.name,
			Value: core.Float2(b.total),
			Color: color,
			Count: b.count,
		})
	}
	return out
}

func sourceBreakdown(current []core.Expense) []SourceStat {
	var order []core.Source
	counts := make(map[core.Source]int)
	for _, e := range current {
		if _, ok := counts[e.Source]; !ok {
			order = append(order, e.Source)
		}
		counts[e.Source]++
	}

	out := make([]SourceStat, 0, len(order))
	for _, src := range order {
		color, ok := sourceColors[src]
		if !ok {
			color = fallbackSourceColor
		}
		out = append(out, SourceStat{
			Name:  strings.ToUpper(string(src)),
			Value: counts[src],
			Color: color,
		})
	}
	return out
}

// trend buckets current-window expenses by calendar day in now's location.
// The last point is the day containing now.
func trend(current []core.Expense, days int, now time.Time) []TrendPoint {
	points := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -(days - 1 - i))
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		dayEnd := dayStart.Add(24 * time.Hour)

		sum := decimal.Zero
		for _, e := range current {
			if !e.Date.Before(dayStart) && e.Date.Before(dayEnd) {
				sum = sum.Add(e.Amount)
			}
		}
		points = append(points, TrendPoint{
			Date:   day.Format(trendLabelLayout),
			Amount: core.Float2(sum),
		})
	}
	return points
}

func recent(current []core.Expense) []RecentTransaction {
	sorted := make([]core.Expense, len(current))
	copy(sorted, current)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if len(sorted) > recentLimit {
		sorted = sorted[:recentLimit]
	}

	out := make([]RecentTransaction, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, RecentTransaction{
			ID:       e.ID,
			Merchant: e.Merchant,
			Amount:   core.Float2(e.Amount),
			Category: e.Category,
			Date:     e.Date,
			Source:   string(e.Source),
		})
	}
	return out
}
