package extract

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies a binary upload that has no real recognizer behind it yet.
type Kind string

const (
	KindReceipt Kind = "receipt"
	KindVoice   Kind = "voice"
)

const placeholderConfidence = 0.5

// Placeholder returns the stub draft for an uploaded receipt image or voice
// recording. No OCR or speech recognition happens: the merchant is a fixed
// marker, the amount is zero and the user's first category is preselected.
func Placeholder(kind Kind, filename string, knownCategories []string, now time.Time) Result {
	var merchant, desc string
	switch kind {
	case KindVoice:
		merchant = "Voice Entry"
		desc = "Voice recording: " + filename
	default:
		merchant = "Receipt Upload"
		desc = "Receipt uploaded: " + filename
	}

	amount := decimal.Zero
	res := Result{
		Merchant:    &merchant,
		Amount:      &amount,
		Date:        now,
		Description: &desc,
		Confidence:  placeholderConfidence,
	}
	if len(knownCategories) > 0 {
		category := knownCategories[0]
		res.Category = &category
	}
	return res
}
