package dto

import "github.com/noah-isme/fee-recon-api/internal/models"

// PaymentListQuery captures GET /payments filters.
type PaymentListQuery struct {
	Status          string `form:"status" validate:"omitempty,oneof=UNPROCESSED MATCHED FAILED"`
	AdmissionNumber string `form:"admission_number" validate:"omitempty,max=20"`
	From            string `form:"from"`
	To              string `form:"to"`
	Page            int    `form:"page" validate:"omitempty,min=1"`
	PageSize        int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// ResetPaymentRequest re-queues a FAILED payment, optionally against a
// corrected admission number.
type ResetPaymentRequest struct {
	AdmissionNumber *string `json:"admission_number" validate:"omitempty,min=1,max=20"`
}

// IngestRejection explains why a statement row was not stored.
type IngestRejection struct {
	Line            int    `json:"line,omitempty"`
	TransactionCode string `json:"transaction_code,omitempty"`
	Reason          string `json:"reason"`
}

// IngestSummary is returned after an upload.
type IngestSummary struct {
	Received       int                 `json:"received"`
	Created        int                 `json:"created"`
	Duplicates     int                 `json:"duplicates"`
	Rejected       []IngestRejection   `json:"rejected"`
	Queued         bool                `json:"reconciliation_queued"`
	JobID          string              `json:"job_id,omitempty"`
	Reconciliation *models.BatchResult `json:"reconciliation,omitempty"`
}

// IngestRequest carries already-parsed payments pushed by an integration.
type IngestRequest struct {
	Payments []models.RawPayment `json:"payments"`
}
