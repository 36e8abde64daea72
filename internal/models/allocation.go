package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Allocation records how much of a payment went to one obligation.
// Sequence is the position of the obligation in the allocation walk.
type Allocation struct {
	ID            string          `db:"id" json:"id"`
	PaymentID     string          `db:"payment_id" json:"payment_id"`
	ObligationID  string          `db:"obligation_id" json:"obligation_id"`
	Sequence      int             `db:"sequence" json:"sequence"`
	AmountApplied decimal.Decimal `db:"amount_applied" json:"amount_applied"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
