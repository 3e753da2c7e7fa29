// Package worker consumes the broker queues: raw transaction text to ingest
// and expense events to mirror into the spreadsheet export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"moneytrack/internal/amqp"
	"moneytrack/internal/core"
	"moneytrack/internal/log"
	"moneytrack/internal/services"
	"moneytrack/internal/sheets"
	"moneytrack/internal/storage"
)

type (
	Ingester interface {
		IngestText(ctx context.Context, userID, text string, receivedAt time.Time) (services.IngestResult, error)
	}

	ExpenseReader interface {
		GetExpense(ctx context.Context, userID, id string) (core.Expense, error)
	}

	// Consumer is the queue side of *amqp.Client.
	Consumer interface {
		ConsumeIngest(ctx context.Context, handle func(context.Context, amqp.IngestMessage) error) error
		ConsumeExpenseEvents(ctx context.Context, handle func(context.Context, amqp.ExpenseEvent) error) error
	}
)

type Worker struct {
	ingester Ingester
	reader   ExpenseReader
	exporter sheets.Exporter // nil disables the export
	logger   *log.Logger
}

func New(ingester Ingester, reader ExpenseReader, exporter sheets.Exporter, logger *log.Logger) *Worker {
	return &Worker{
		ingester: ingester,
		reader:   reader,
		exporter: exporter,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Run consumes until ctx is cancelled. The events queue is only consumed
// when an exporter is configured.
func (w *Worker) Run(ctx context.Context, c Consumer) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.ConsumeIngest(ctx, w.HandleIngest)
	})
	if w.exporter != nil {
		g.Go(func() error {
			return c.ConsumeExpenseEvents(ctx, w.HandleExpenseEvent)
		})
	} else {
		w.logger.Info("Spreadsheet export disabled, not consuming expense events")
	}

	return g.Wait()
}

// HandleIngest turns one ingest message into an expense. Input the services
// reject is reported as malformed so the message is dropped; anything else
// is returned for a retry.
func (w *Worker) HandleIngest(ctx context.Context, msg amqp.IngestMessage) error {
	res, err := w.ingester.IngestText(ctx, msg.UserID, msg.Text, msg.ReceivedAt)
	switch {
	case errors.Is(err, services.ErrInvalid):
		return fmt.Errorf("%w: %w", amqp.ErrMalformed, err)
	case err != nil:
		return fmt.Errorf("ingest text: %w", err)
	}

	if res.Created {
		w.logger.InfoContext(ctx, "Expense ingested",
			log.FieldUserID, msg.UserID,
			log.FieldExpenseID, res.Expense.ID,
			log.FieldAmount, res.Expense.Amount.StringFixed(2),
			log.FieldCategory, res.Expense.Category,
			log.FieldConfidence, res.Draft.Confidence)
	}
	return nil
}

// HandleExpenseEvent appends newly created expenses to the spreadsheet.
// Updates and deletions are not mirrored.
func (w *Worker) HandleExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	if w.exporter == nil || ev.Type != amqp.EventCreated {
		return nil
	}

	e, err := w.reader.GetExpense(ctx, ev.UserID, ev.ExpenseID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.InfoContext(ctx, "Expense gone before export, skipping",
			log.FieldExpenseID, ev.ExpenseID, log.FieldUserID, ev.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}

	done, err := w.exporter.Exported(ctx, e.ID)
	if err != nil {
		return fmt.Errorf("check export: %w", err)
	}
	if done {
		w.logger.DebugContext(ctx, "Expense already exported", log.FieldExpenseID, e.ID)
		return nil
	}

	ref, err := w.exporter.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully exported expense",
		log.FieldExpenseID, e.ID,
		log.FieldUserID, e.UserID,
		"sheets_ref", ref,
		log.FieldOperation, log.OpExport)
	return nil
}
