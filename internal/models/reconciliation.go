package models

import "github.com/shopspring/decimal"

// ReconcileOutcome describes what a single reconciliation did.
// Skipped is set when the payment had already left UNPROCESSED.
type ReconcileOutcome struct {
	PaymentID    string          `json:"payment_id"`
	Status       PaymentStatus   `json:"status"`
	MatchedFeeID *string         `json:"matched_fee_id,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Allocations  []Allocation    `json:"allocations,omitempty"`
	Remaining    decimal.Decimal `json:"remaining"`
	Skipped      bool            `json:"skipped"`
}

// BatchResult tallies one coordinator run.
type BatchResult struct {
	Total   int `json:"total"`
	Matched int `json:"matched"`
	Failed  int `json:"failed"`
}
