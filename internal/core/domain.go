package core

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SourceManual  Source = "manual"
	SourceSMS     Source = "sms"
	SourceReceipt Source = "receipt"
	SourceVoice   Source = "voice"
)

const (
	MaxMerchantLen    = 200
	MaxDescriptionLen = 500
	MaxCategoryName   = 50
	MaxIconLen        = 10

	DefaultCategoryColor = "#0ea5e9"
	DefaultCategoryIcon  = "📦"
)

type (
	// Source tags where an expense came from.
	Source string

	Expense struct {
		ID          string
		UserID      string
		Amount      decimal.Decimal
		Merchant    string
		Category    string // Category name, soft reference
		Date        time.Time
		Source      Source
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time // zero until first update
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		Color     string
		Icon      string
		Count     int64 // Expenses currently assigned
		CreatedAt time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyMerchant       = errors.New("empty merchant")
	ErrMerchantTooLong     = errors.New("merchant too long (max 200 characters)")
	ErrEmptyCategory       = errors.New("empty category")
	ErrZeroDate            = errors.New("date cannot be zero")
	ErrInvalidSource       = errors.New("invalid source")
	ErrDescriptionTooLong  = errors.New("description too long (max 500 characters)")
	ErrEmptyUser           = errors.New("empty user id")
	ErrEmptyCategoryName   = errors.New("empty category name")
	ErrCategoryNameTooLong = errors.New("category name too long (max 50 characters)")
	ErrInvalidColor        = errors.New("invalid color, expected #RRGGBB")
	ErrIconTooLong         = errors.New("icon too long (max 10 characters)")
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ParseSource converts a raw string into a Source, case-insensitively.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.IsValid() {
		return "", ErrInvalidSource
	}
	return src, nil
}

// IsValid reports whether s is one of the known sources.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceSMS, SourceReceipt, SourceVoice:
		return true
	default:
		return false
	}
}

func (s Source) String() string {
	return string(s)
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUser
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	merchant := strings.TrimSpace(e.Merchant)
	if merchant == "" {
		return ErrEmptyMerchant
	}
	if len([]rune(merchant)) > MaxMerchantLen {
		return ErrMerchantTooLong
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if e.Date.IsZero() {
		return ErrZeroDate
	}
	if !e.Source.IsValid() {
		return ErrInvalidSource
	}
	if len([]rune(e.Description)) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// Normalize fills defaults for optional category attributes.
func (c *Category) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	if c.Icon == "" {
		c.Icon = DefaultCategoryIcon
	}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyCategoryName
	}
	if len([]rune(name)) > MaxCategoryName {
		return ErrCategoryNameTooLong
	}
	if !colorPattern.MatchString(c.Color) {
		return ErrInvalidColor
	}
	if len([]rune(c.Icon)) > MaxIconLen {
		return ErrIconTooLong
	}
	return nil
}
