package services

import (
	"context"
	"strings"
	"time"

	"moneytrack/internal/core"
	"moneytrack/internal/extract"
	"moneytrack/internal/log"
)

// Reasons an ingested text did not become an expense.
const (
	SkipNoAmount       = "no amount"
	SkipNoMerchant     = "no merchant"
	SkipNoCategory     = "no category"
	SkipLowConfidence  = "low confidence"
	SkipNonPositiveAmt = "non-positive amount"
)

// IngestResult reports what happened to one piece of ingested text.
type IngestResult struct {
	Draft   extract.Result
	Created bool
	Expense core.Expense
	// SkipReason is set when Created is false.
	SkipReason string
}

// ParseText extracts an expense draft from free text against the user's
// categories. Nothing is stored.
func (s *ExpenseService) ParseText(ctx context.Context, userID, text string) (extract.Result, error) {
	known, err := s.knownCategories(ctx, userID)
	if err != nil {
		return extract.Result{}, err
	}
	res := extract.New(extract.WithClock(s.cfg.Clock)).Extract(text, known)
	s.logger.DebugContext(ctx, "Text parsed",
		log.FieldUserID, userID, log.FieldConfidence, res.Confidence, log.FieldOperation, log.OpParse)
	return res, nil
}

// ParseUpload returns the placeholder draft for an uploaded receipt or voice
// recording.
func (s *ExpenseService) ParseUpload(ctx context.Context, userID string, kind extract.Kind, filename string) (extract.Result, error) {
	known, err := s.knownCategories(ctx, userID)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Placeholder(kind, filename, known, s.cfg.Clock()), nil
}

// IngestText turns a transaction notification into an expense with source
// sms when the draft is complete and confident enough. receivedAt is the
// fallback date; zero means now.
func (s *ExpenseService) IngestText(ctx context.Context, userID, text string, receivedAt time.Time) (IngestResult, error) {
	known, err := s.knownCategories(ctx, userID)
	if err != nil {
		return IngestResult{}, err
	}
	if receivedAt.IsZero() {
		receivedAt = s.cfg.Clock()
	}
	draft := extract.New(extract.WithClock(func() time.Time { return receivedAt })).Extract(text, known)
	result := IngestResult{Draft: draft}

	switch {
	case draft.Amount == nil:
		result.SkipReason = SkipNoAmount
	case !draft.Amount.IsPositive():
		result.SkipReason = SkipNonPositiveAmt
	case draft.Merchant == nil:
		result.SkipReason = SkipNoMerchant
	case draft.Category == nil:
		result.SkipReason = SkipNoCategory
	case draft.Confidence < s.cfg.MinConfidence:
		result.SkipReason = SkipLowConfidence
	}
	if result.SkipReason != "" {
		s.logger.InfoContext(ctx, "Ingested text skipped",
			log.FieldUserID, userID, "reason", result.SkipReason,
			log.FieldConfidence, draft.Confidence, log.FieldOperation, log.OpIngest)
		return result, nil
	}

	e := core.Expense{
		UserID:   userID,
		Amount:   *draft.Amount,
		Merchant: *draft.Merchant,
		Category: *draft.Category,
		Date:     draft.Date,
		Source:   core.SourceSMS,
	}
	if draft.Description != nil {
		e.Description = *draft.Description
	}
	created, err := s.Create(ctx, e)
	if err != nil {
		return result, err
	}
	result.Created = true
	result.Expense = created
	return result, nil
}

func (s *ExpenseService) knownCategories(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalid(core.ErrEmptyUser)
	}
	cats, err := s.cats.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return core.CategoryNames(cats), nil
}
