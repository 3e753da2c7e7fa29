// Package services holds the application use cases behind the HTTP API and
// the worker: expense and category management, dashboard statistics and text
// ingestion.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"moneytrack/internal/amqp"
	"moneytrack/internal/analytics"
	"moneytrack/internal/cache"
	"moneytrack/internal/log"
)

// ErrInvalid wraps every input validation failure so callers can map it to a
// single response class.
var ErrInvalid = errors.New("invalid input")

// DefaultMinConfidence is the extraction confidence below which ingested
// text is not turned into an expense.
const DefaultMinConfidence = 0.6

// EventPublisher announces committed expense writes. *amqp.Client
// satisfies it.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error
}

// Config carries the collaborators shared by the services. Zero fields get
// working defaults.
type Config struct {
	Publisher     EventPublisher
	StatsCache    cache.Cache[analytics.Stats]
	MinConfidence float64
	Clock         func() time.Time
	NewID         func() string
	Logger        *log.Logger
}

func (c Config) withDefaults() Config {
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.Logger == nil {
		c.Logger = log.Discard()
	}
	return c
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalid, err)
}

// statsKeyPrefix scopes every cached statistics entry of a user.
func statsKeyPrefix(userID string) string {
	return userID + "|"
}

func statsKey(userID string, r analytics.Range) string {
	return statsKeyPrefix(userID) + string(r)
}

// invalidateStats drops the cached dashboards of userID after a write.
func invalidateStats(c cache.Cache[analytics.Stats], logger *log.Logger, userID string) {
	if c == nil {
		return
	}
	if n := c.DeletePrefix(statsKeyPrefix(userID)); n > 0 {
		logger.Debug("Stats cache invalidated", log.FieldUserID, userID, "entries", n)
	}
}
