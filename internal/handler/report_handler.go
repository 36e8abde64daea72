package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/internal/service"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/response"
)

type reportingService interface {
	StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery) ([]models.StudentBalance, bool, error)
	ClassBalances(ctx context.Context, schoolID string) ([]models.ClassBalance, bool, error)
	SchoolBalance(ctx context.Context, schoolID string) (*models.SchoolBalance, bool, error)
	ReconciliationSummary(ctx context.Context, schoolID string) (*models.ReconciliationSummary, bool, error)
	CollectionTrend(ctx context.Context, schoolID string, query dto.TrendQuery) ([]models.CollectionPoint, bool, error)
}

type balanceExporter interface {
	StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery, format string) (*service.ExportFile, error)
}

type auditTrail interface {
	List(ctx context.Context, schoolID string, query dto.AuditQuery) ([]models.AuditLog, *models.Pagination, error)
}

// ReportHandler exposes the read-only balance reports.
type ReportHandler struct {
	reports  reportingService
	exporter balanceExporter
	audit    auditTrail
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportingService, exporter balanceExporter, audit auditTrail) *ReportHandler {
	return &ReportHandler{reports: reports, exporter: exporter, audit: audit}
}

// StudentBalances godoc
// @Summary Student fee balances
// @Tags Reports
// @Produce json
// @Param class_id query string false "Class ID"
// @Param status query string false "PAID, PARTIAL or UNPAID"
// @Success 200 {object} response.Envelope{data=[]models.StudentBalance}
// @Router /reports/students [get]
func (h *ReportHandler) StudentBalances(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.StudentBalanceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	balances, hit, err := h.reports.StudentBalances(c.Request.Context(), claims.SchoolID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, balances, hit)
}

// ExportStudentBalances godoc
// @Summary Export student fee balances
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param class_id query string false "Class ID"
// @Param status query string false "PAID, PARTIAL or UNPAID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /reports/students/export [get]
func (h *ReportHandler) ExportStudentBalances(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.StudentBalanceQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	file, err := h.exporter.StudentBalances(c.Request.Context(), claims.SchoolID, query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// ClassBalances godoc
// @Summary Fee balances per class
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope{data=[]models.ClassBalance}
// @Router /reports/classes [get]
func (h *ReportHandler) ClassBalances(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	classes, hit, err := h.reports.ClassBalances(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, classes, hit)
}

// SchoolBalance godoc
// @Summary School fee collection summary
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope{data=models.SchoolBalance}
// @Router /reports/school [get]
func (h *ReportHandler) SchoolBalance(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	summary, hit, err := h.reports.SchoolBalance(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, summary, hit)
}

// Reconciliation godoc
// @Summary Reconciliation status summary
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope{data=models.ReconciliationSummary}
// @Router /reports/reconciliation [get]
func (h *ReportHandler) Reconciliation(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	summary, hit, err := h.reports.ReconciliationSummary(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, summary, hit)
}

// Trends godoc
// @Summary Daily matched collections
// @Tags Reports
// @Produce json
// @Param days query int false "Window in days (default 30)"
// @Success 200 {object} response.Envelope{data=[]models.CollectionPoint}
// @Router /reports/trends [get]
func (h *ReportHandler) Trends(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.TrendQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	points, hit, err := h.reports.CollectionTrend(c.Request.Context(), claims.SchoolID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	cachedJSON(c, points, hit)
}

// AuditTrail godoc
// @Summary Operator audit trail
// @Tags Reports
// @Produce json
// @Param action query string false "Action filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.AuditLog}
// @Router /reports/audit-trail [get]
func (h *ReportHandler) AuditTrail(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	logs, pagination, err := h.audit.List(c.Request.Context(), claims.SchoolID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}
