package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType names what happened to an expense.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ErrMalformed marks a message that can never be processed. Consumers drop
// such messages instead of requeueing them.
var ErrMalformed = errors.New("malformed message")

// ExpenseEvent is published after every committed expense write. It carries
// only identifiers; consumers load the current state themselves.
type ExpenseEvent struct {
	Type      EventType `json:"type"`
	ExpenseID string    `json:"expense_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(t EventType, userID, expenseID string, at time.Time) ExpenseEvent {
	return ExpenseEvent{
		Type:      t,
		ExpenseID: expenseID,
		UserID:    userID,
		Timestamp: at.UTC(),
	}
}

func (e ExpenseEvent) Validate() error {
	switch e.Type {
	case EventCreated, EventUpdated, EventDeleted:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrMalformed, e.Type)
	}
	if e.ExpenseID == "" || e.UserID == "" {
		return fmt.Errorf("%w: event without expense or user id", ErrMalformed)
	}
	return nil
}

// IngestMessage asks the worker to turn raw transaction text into an expense.
type IngestMessage struct {
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

func (m IngestMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: ingest message without user id", ErrMalformed)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: ingest message without text", ErrMalformed)
	}
	return nil
}

type validator interface {
	Validate() error
}

// decode unmarshals and validates a message body. Every failure wraps
// ErrMalformed.
func decode[T validator](body []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return msg, err
	}
	return msg, nil
}

func DecodeExpenseEvent(body []byte) (ExpenseEvent, error) {
	return decode[ExpenseEvent](body)
}

func DecodeIngestMessage(body []byte) (IngestMessage, error) {
	return decode[IngestMessage](body)
}
