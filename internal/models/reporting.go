package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceStatus summarises where a student stands against their fees.
type BalanceStatus string

const (
	BalancePaid    BalanceStatus = "PAID"
	BalancePartial BalanceStatus = "PARTIAL"
	BalanceUnpaid  BalanceStatus = "UNPAID"
)

// ClassifyBalance is PAID when nothing is outstanding, UNPAID when no
// obligation has been settled and PARTIAL otherwise.
func ClassifyBalance(outstanding decimal.Decimal, unpaidCount, totalCount int) BalanceStatus {
	if !outstanding.IsPositive() {
		return BalancePaid
	}
	if unpaidCount == totalCount {
		return BalanceUnpaid
	}
	return BalancePartial
}

// StudentBalance is a student's position across all their obligations.
type StudentBalance struct {
	StudentID       string          `db:"student_id" json:"student_id"`
	AdmissionNumber string          `db:"admission_number" json:"admission_number"`
	FirstName       string          `db:"first_name" json:"first_name"`
	LastName        string          `db:"last_name" json:"last_name"`
	ClassID         *string         `db:"class_id" json:"class_id,omitempty"`
	ClassName       *string         `db:"class_name" json:"class_name,omitempty"`
	TotalDue        decimal.Decimal `db:"total_due" json:"total_due"`
	TotalPaid       decimal.Decimal `db:"total_paid" json:"total_paid"`
	Outstanding     decimal.Decimal `db:"outstanding" json:"outstanding"`
	FeeCount        int             `db:"fee_count" json:"fee_count"`
	UnpaidCount     int             `db:"unpaid_count" json:"unpaid_count"`
	Status          BalanceStatus   `db:"-" json:"payment_status"`
}

// Classify fills Status from the aggregated columns.
func (b *StudentBalance) Classify() {
	b.Status = ClassifyBalance(b.Outstanding, b.UnpaidCount, b.FeeCount)
}

// ClassBalance rolls student balances up to a class.
type ClassBalance struct {
	ClassID         string          `json:"class_id"`
	ClassName       string          `json:"class_name"`
	Students        int             `json:"students"`
	TotalDue        decimal.Decimal `json:"total_due"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	PaidStudents    int             `json:"paid_students"`
	PartialStudents int             `json:"partial_students"`
	UnpaidStudents  int             `json:"unpaid_students"`
}

// SchoolBalance rolls every student of a tenant into one figure.
type SchoolBalance struct {
	SchoolID       string          `json:"school_id"`
	Students       int             `json:"students"`
	TotalDue       decimal.Decimal `json:"total_due"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	CollectionRate decimal.Decimal `json:"collection_rate"`
}

// StatusTotal is the count and value of payments in one status.
type StatusTotal struct {
	Status PaymentStatus   `db:"status" json:"status"`
	Count  int             `db:"count" json:"count"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// ReconciliationSummary reports payment totals per status for a tenant.
type ReconciliationSummary struct {
	SchoolID    string          `json:"school_id"`
	Unprocessed StatusTotal     `json:"unprocessed"`
	Matched     StatusTotal     `json:"matched"`
	Failed      StatusTotal     `json:"failed"`
	Total       int             `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Add folds a per-status row into the summary.
func (s *ReconciliationSummary) Add(row StatusTotal) {
	switch row.Status {
	case PaymentStatusUnprocessed:
		s.Unprocessed = row
	case PaymentStatusMatched:
		s.Matched = row
	case PaymentStatusFailed:
		s.Failed = row
	}
	s.Total += row.Count
	s.TotalAmount = s.TotalAmount.Add(row.Amount)
}

// CollectionPoint is the matched amount collected on one day.
type CollectionPoint struct {
	Day      time.Time       `db:"day" json:"day"`
	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Payments int             `db:"payments" json:"payments"`
}
