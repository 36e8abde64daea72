package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// Outcome messages stored on payments. Operators read these in the
// unmatched queue, so their wording is stable.
const (
	msgNoUnpaidFees    = "No unpaid fees found for this student"
	msgInternalFailure = "Reconciliation failed due to an internal error"
)

func studentNotFoundMessage(admissionNumber string) string {
	return fmt.Sprintf("Student with ID %s not found", admissionNumber)
}

func overpaymentMessage(remaining decimal.Decimal) string {
	return fmt.Sprintf("Overpayment of KES %s. All fees cleared.", remaining.StringFixed(2))
}

func invalidAmountMessage(amount decimal.Decimal) string {
	return fmt.Sprintf("Invalid payment amount %s", amount.StringFixed(2))
}

// allocationStep is the share of a payment planned for one obligation.
type allocationStep struct {
	obligation models.FeeObligation
	amount     decimal.Decimal
}

// owing drops obligations with nothing left to pay, such as a zero-due item
// not yet flagged paid.
func owing(obligations []models.FeeObligation) []models.FeeObligation {
	out := make([]models.FeeObligation, 0, len(obligations))
	for _, o := range obligations {
		if o.Owed().IsPositive() {
			out = append(out, o)
		}
	}
	return out
}

// planAllocation walks obligations in the given order and applies to each
// the lesser of what remains and what it still owes. It returns the planned
// steps and the amount left once every obligation has had its turn.
func planAllocation(amount decimal.Decimal, obligations []models.FeeObligation) ([]allocationStep, decimal.Decimal) {
	remaining := amount
	steps := make([]allocationStep, 0, len(obligations))
	for _, obligation := range obligations {
		if !remaining.IsPositive() {
			break
		}
		owed := obligation.Owed()
		if !owed.IsPositive() {
			continue
		}
		applied := decimal.Min(remaining, owed)
		steps = append(steps, allocationStep{obligation: obligation, amount: applied})
		remaining = remaining.Sub(applied)
	}
	return steps, remaining
}
