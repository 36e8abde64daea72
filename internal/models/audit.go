package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionPaymentUpload    = "PAYMENT_UPLOAD"
	AuditActionReconcileBatch   = "RECONCILE_BATCH"
	AuditActionReconcilePayment = "RECONCILE_PAYMENT"
	AuditActionPaymentReset     = "PAYMENT_RESET"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	SchoolID   string         `db:"school_id" json:"school_id"`
	UserID     *string        `db:"user_id" json:"user_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	Details    types.JSONText `db:"details" json:"details,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter narrows the audit trail listing.
type AuditFilter struct {
	SchoolID string
	Action   string
	Page     int
	PageSize int
}
