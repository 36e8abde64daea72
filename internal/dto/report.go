package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// StudentBalanceQuery filters GET /reports/students.
type StudentBalanceQuery struct {
	ClassID string `form:"class_id"`
	Status  string `form:"status" validate:"omitempty,oneof=PAID PARTIAL UNPAID"`
}

// TrendQuery sets the look-back window of GET /reports/trends.
type TrendQuery struct {
	Days int `form:"days" validate:"omitempty,min=1,max=366"`
}

// AuditQuery filters GET /reports/audit-trail.
type AuditQuery struct {
	Action   string `form:"action"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// StudentFeesResponse is the ledger view of one student.
type StudentFeesResponse struct {
	Student     models.Student         `json:"student"`
	StudentName string                 `json:"student_name"`
	Obligations []models.FeeObligation `json:"obligations"`
	TotalDue    decimal.Decimal        `json:"total_due"`
	TotalPaid   decimal.Decimal        `json:"total_paid"`
	Outstanding decimal.Decimal        `json:"outstanding"`
	Status      models.BalanceStatus   `json:"payment_status"`
}

// StudentListQuery filters GET /students.
type StudentListQuery struct {
	ClassID  string `form:"class_id"`
	Search   string `form:"search" validate:"omitempty,max=100"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}
