package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the reconciliation state of a payment record.
type PaymentStatus string

const (
	PaymentStatusUnprocessed PaymentStatus = "UNPROCESSED"
	PaymentStatusMatched     PaymentStatus = "MATCHED"
	PaymentStatusFailed      PaymentStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnprocessed, PaymentStatusMatched, PaymentStatusFailed:
		return true
	}
	return false
}

// ParsePaymentStatus converts free text into a status, rejecting unknown values.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	status := PaymentStatus(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown payment status %q", raw)
	}
	return status, nil
}

// Scan refuses rows carrying a status outside the closed set.
func (s *PaymentStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan payment status: unsupported type %T", src)
	}
	parsed, err := ParsePaymentStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s PaymentStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown payment status %q", string(s))
	}
	return string(s), nil
}

// Payment is one inbound paybill transaction. TransactionCode is unique
// across the store. MatchedFeeID points at the first obligation the payment
// contributed to; the full split lives in allocations.
type Payment struct {
	ID              string          `db:"id" json:"id"`
	SchoolID        string          `db:"school_id" json:"school_id"`
	TransactionCode string          `db:"transaction_code" json:"transaction_code"`
	AdmissionNumber string          `db:"student_admission_number" json:"student_admission_number"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionDate time.Time       `db:"transaction_date" json:"transaction_date"`
	Status          PaymentStatus   `db:"status" json:"status"`
	MatchedFeeID    *string         `db:"matched_fee_id" json:"matched_fee_id,omitempty"`
	ErrorMessage    *string         `db:"error_message" json:"error_message,omitempty"`
	UploadedBy      *string         `db:"uploaded_by" json:"uploaded_by,omitempty"`
	ProcessedAt     *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// RawPayment is a tuple produced by the ingestion feed. Line is the source
// statement line when the tuple came from a file.
type RawPayment struct {
	Line            int             `json:"line,omitempty"`
	AdmissionNumber string          `json:"admission_number" validate:"required,max=20"`
	TransactionCode string          `json:"transaction_code" validate:"required,max=50"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transaction_date" validate:"required"`
}

// PaymentFilter narrows payment listings. SchoolID is mandatory.
type PaymentFilter struct {
	SchoolID        string
	Status          *PaymentStatus
	AdmissionNumber string
	From            *time.Time
	To              *time.Time
	Page            int
	PageSize        int
}

// PaymentDetail bundles a payment with the allocations it produced.
type PaymentDetail struct {
	Payment
	Allocations []Allocation `json:"allocations"`
}
