package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/internal/service"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/response"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 64 << 10

type paymentIngestor interface {
	IngestStatement(ctx context.Context, schoolID, uploaderID string, r io.Reader) (*dto.IngestSummary, error)
	Ingest(ctx context.Context, schoolID, uploaderID string, rows []models.RawPayment) (*dto.IngestSummary, error)
}

type paymentQueries interface {
	List(ctx context.Context, schoolID string, query dto.PaymentListQuery) ([]models.Payment, *models.Pagination, error)
	Get(ctx context.Context, schoolID, id string) (*models.PaymentDetail, error)
	ListUnmatched(ctx context.Context, schoolID string, limit int) ([]models.Payment, error)
	Reset(ctx context.Context, schoolID, id string, req dto.ResetPaymentRequest) (*models.Payment, error)
}

type paymentReconciler interface {
	ReconcileAll(ctx context.Context, schoolID string) (*models.BatchResult, error)
	ReconcilePayment(ctx context.Context, schoolID, paymentID string) (*models.ReconcileOutcome, error)
}

type unmatchedExporter interface {
	UnmatchedPayments(ctx context.Context, schoolID, format string) (*service.ExportFile, error)
}

// PaymentHandler exposes statement upload, payment administration and
// reconciliation endpoints.
type PaymentHandler struct {
	ingest     paymentIngestor
	payments   paymentQueries
	reconciler paymentReconciler
	exporter   unmatchedExporter
	maxUpload  int64
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(ingest paymentIngestor, payments paymentQueries, reconciler paymentReconciler, exporter unmatchedExporter, maxUpload int64) *PaymentHandler {
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	return &PaymentHandler{ingest: ingest, payments: payments, reconciler: reconciler, exporter: exporter, maxUpload: maxUpload}
}

// Upload godoc
// @Summary Upload M-Pesa statement
// @Description Stores every valid row as an UNPROCESSED payment and schedules reconciliation.
// @Tags Payments
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Paybill statement CSV"
// @Success 201 {object} response.Envelope{data=dto.IngestSummary}
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /payments/upload [post]
func (h *PaymentHandler) Upload(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > h.maxUpload {
		response.Error(c, appErrors.ErrPayloadTooLarge)
		return
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "only CSV files are allowed"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	summary, err := h.ingest.IngestStatement(c.Request.Context(), claims.SchoolID, claims.UserID, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// Ingest godoc
// @Summary Ingest parsed payments
// @Description Accepts payments already parsed by an integration.
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body dto.IngestRequest true "Payments"
// @Success 201 {object} response.Envelope{data=dto.IngestSummary}
// @Failure 400 {object} response.Envelope
// @Router /payments/ingest [post]
func (h *PaymentHandler) Ingest(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid ingest payload"))
		return
	}
	if len(req.Payments) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payments are required"))
		return
	}
	summary, err := h.ingest.Ingest(c.Request.Context(), claims.SchoolID, claims.UserID, req.Payments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param status query string false "UNPROCESSED, MATCHED or FAILED"
// @Param admission_number query string false "Admission number"
// @Param from query string false "From date (YYYY-MM-DD or RFC3339)"
// @Param to query string false "To date (YYYY-MM-DD or RFC3339)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.Payment}
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.PaymentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	payments, pagination, err := h.payments.List(c.Request.Context(), claims.SchoolID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Unmatched godoc
// @Summary List unmatched payments
// @Description FAILED payments awaiting operator follow-up, newest first.
// @Tags Payments
// @Produce json
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope{data=[]models.Payment}
// @Router /payments/unmatched [get]
func (h *PaymentHandler) Unmatched(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	payments, err := h.payments.ListUnmatched(c.Request.Context(), claims.SchoolID, queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// ExportUnmatched godoc
// @Summary Export unmatched payments
// @Tags Payments
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /payments/unmatched/export [get]
func (h *PaymentHandler) ExportUnmatched(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	file, err := h.exporter.UnmatchedPayments(c.Request.Context(), claims.SchoolID, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Get godoc
// @Summary Payment detail
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope{data=models.PaymentDetail}
// @Failure 404 {object} response.Envelope
// @Router /payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	detail, err := h.payments.Get(c.Request.Context(), claims.SchoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ReconcileAll godoc
// @Summary Reconcile pending payments
// @Description Runs the allocation engine over every UNPROCESSED payment of the caller's school.
// @Tags Reconciliation
// @Produce json
// @Success 200 {object} response.Envelope{data=models.BatchResult}
// @Router /payments/reconcile [post]
func (h *PaymentHandler) ReconcileAll(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	result, err := h.reconciler.ReconcileAll(c.Request.Context(), claims.SchoolID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reconcile godoc
// @Summary Reconcile one payment
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope{data=models.ReconcileOutcome}
// @Failure 404 {object} response.Envelope
// @Router /payments/{id}/reconcile [post]
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	outcome, err := h.reconciler.ReconcilePayment(c.Request.Context(), claims.SchoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Reset godoc
// @Summary Reset a failed payment
// @Description Returns a FAILED payment to UNPROCESSED, optionally with a corrected admission number.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body dto.ResetPaymentRequest false "Correction"
// @Success 200 {object} response.Envelope{data=models.Payment}
// @Failure 409 {object} response.Envelope
// @Router /payments/{id}/reset [post]
func (h *PaymentHandler) Reset(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.ResetPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reset payload"))
			return
		}
	}
	payment, err := h.payments.Reset(c.Request.Context(), claims.SchoolID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}
