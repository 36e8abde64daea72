package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FeeObligation is a student's liability for one fee item in one academic
// year and term. AmountDue is copied from the fee item when the obligation is
// raised; AmountPaid only ever grows.
type FeeObligation struct {
	ID                string          `db:"id" json:"id"`
	StudentID         string          `db:"student_id" json:"student_id"`
	FeeItemID         string          `db:"fee_item_id" json:"fee_item_id"`
	FeeItemName       string          `db:"fee_item_name" json:"fee_item_name"`
	AcademicYearID    string          `db:"academic_year_id" json:"academic_year_id"`
	AcademicYearName  string          `db:"academic_year_name" json:"academic_year_name"`
	AcademicYearStart time.Time       `db:"academic_year_start" json:"academic_year_start"`
	Term              int             `db:"term" json:"term"`
	AmountDue         decimal.Decimal `db:"amount_due" json:"amount_due"`
	AmountPaid        decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	IsPaid            bool            `db:"is_paid" json:"is_paid"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// Owed returns the unpaid balance, never negative.
func (o FeeObligation) Owed() decimal.Decimal {
	owed := o.AmountDue.Sub(o.AmountPaid)
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

// Settled reports whether the paid amount covers the amount due.
func (o FeeObligation) Settled() bool {
	return o.AmountPaid.GreaterThanOrEqual(o.AmountDue)
}

// SortForAllocation orders obligations earliest first: academic year start
// date, then term, then id so ties are broken the same way every time.
func SortForAllocation(obligations []FeeObligation) {
	sort.SliceStable(obligations, func(i, j int) bool {
		a, b := obligations[i], obligations[j]
		if !a.AcademicYearStart.Equal(b.AcademicYearStart) {
			return a.AcademicYearStart.Before(b.AcademicYearStart)
		}
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		return a.ID < b.ID
	})
}
