package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/internal/service"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type fakeIngestor struct {
	schoolID string
	uploader string
	body     string
	rows     []models.RawPayment
}

func (f *fakeIngestor) IngestStatement(ctx context.Context, schoolID, uploaderID string, r io.Reader) (*dto.IngestSummary, error) {
	f.schoolID, f.uploader = schoolID, uploaderID
	raw, _ := io.ReadAll(r)
	f.body = string(raw)
	return &dto.IngestSummary{Received: 1, Created: 1, Rejected: []dto.IngestRejection{}, Queued: true}, nil
}

func (f *fakeIngestor) Ingest(ctx context.Context, schoolID, uploaderID string, rows []models.RawPayment) (*dto.IngestSummary, error) {
	f.schoolID, f.rows = schoolID, rows
	return &dto.IngestSummary{Received: len(rows), Created: len(rows), Rejected: []dto.IngestRejection{}}, nil
}

type fakePaymentQueries struct {
	listQuery dto.PaymentListQuery
	reset     dto.ResetPaymentRequest
	resetErr  error
	getErr    error
}

func (f *fakePaymentQueries) List(ctx context.Context, schoolID string, query dto.PaymentListQuery) ([]models.Payment, *models.Pagination, error) {
	f.listQuery = query
	return []models.Payment{{ID: "pay-1", SchoolID: schoolID}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakePaymentQueries) Get(ctx context.Context, schoolID, id string) (*models.PaymentDetail, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.PaymentDetail{Payment: models.Payment{ID: id, SchoolID: schoolID}, Allocations: []models.Allocation{}}, nil
}

func (f *fakePaymentQueries) ListUnmatched(ctx context.Context, schoolID string, limit int) ([]models.Payment, error) {
	return []models.Payment{}, nil
}

func (f *fakePaymentQueries) Reset(ctx context.Context, schoolID, id string, req dto.ResetPaymentRequest) (*models.Payment, error) {
	f.reset = req
	if f.resetErr != nil {
		return nil, f.resetErr
	}
	return &models.Payment{ID: id, Status: models.PaymentStatusUnprocessed}, nil
}

type fakeReconciler struct {
	schoolID string
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context, schoolID string) (*models.BatchResult, error) {
	f.schoolID = schoolID
	return &models.BatchResult{Total: 3, Matched: 2, Failed: 1}, nil
}

func (f *fakeReconciler) ReconcilePayment(ctx context.Context, schoolID, paymentID string) (*models.ReconcileOutcome, error) {
	f.schoolID = schoolID
	return &models.ReconcileOutcome{PaymentID: paymentID, Status: models.PaymentStatusMatched, Remaining: decimal.Zero}, nil
}

type fakeExporter struct{}

func (fakeExporter) UnmatchedPayments(ctx context.Context, schoolID, format string) (*service.ExportFile, error) {
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportFile{Filename: "unmatched.csv", ContentType: "text/csv", Body: []byte("transaction_code\n")}, nil
}

type paymentFixture struct {
	ingest     *fakeIngestor
	payments   *fakePaymentQueries
	reconciler *fakeReconciler
	handler    *PaymentHandler
}

func newPaymentFixture(maxUpload int64) *paymentFixture {
	f := &paymentFixture{ingest: &fakeIngestor{}, payments: &fakePaymentQueries{}, reconciler: &fakeReconciler{}}
	f.handler = NewPaymentHandler(f.ingest, f.payments, f.reconciler, fakeExporter{}, maxUpload)
	return f
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestPaymentHandlerUpload(t *testing.T) {
	f := newPaymentFixture(1 << 20)
	r := newTestRouter(bursar())
	r.POST("/payments/upload", f.handler.Upload)

	body, contentType := multipartBody(t, "statement.CSV", "Transaction Date,Amount,Mpesa Receipt No,Account\n")
	req := httptest.NewRequest(http.MethodPost, "/payments/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "school-1", f.ingest.schoolID)
	assert.Equal(t, "user-1", f.ingest.uploader)
	assert.True(t, strings.HasPrefix(f.ingest.body, "Transaction Date"))
}

func TestPaymentHandlerUploadRejections(t *testing.T) {
	f := newPaymentFixture(64)
	r := newTestRouter(bursar())
	r.POST("/payments/upload", f.handler.Upload)

	body, contentType := multipartBody(t, "statement.xlsx", "a")
	req := httptest.NewRequest(http.MethodPost, "/payments/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, contentType = multipartBody(t, "statement.csv", strings.Repeat("x", 4096))
	req = httptest.NewRequest(http.MethodPost, "/payments/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.ingest.schoolID)
}

func TestPaymentHandlerRequiresTenant(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(&models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin})
	r.POST("/payments/reconcile", f.handler.ReconcileAll)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/reconcile", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.reconciler.schoolID)
}

func TestPaymentHandlerIngestJSON(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(bursar())
	r.POST("/payments/ingest", f.handler.Ingest)

	payload := `{"payments":[{"admission_number":"NA20260001","transaction_code":"QK1","amount":"5000","transaction_date":"2026-02-03T09:15:00Z"}]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/ingest", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.ingest.rows, 1)
	assert.True(t, decimal.NewFromInt(5000).Equal(f.ingest.rows[0].Amount))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/ingest", strings.NewReader(`{"payments":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentHandlerListBindsFilters(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(bursar())
	r.GET("/payments", f.handler.List)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments?status=FAILED&admission_number=NA20260001&page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.PaymentListQuery{Status: "FAILED", AdmissionNumber: "NA20260001", Page: 2}, f.payments.listQuery)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestPaymentHandlerGetNotFound(t *testing.T) {
	f := newPaymentFixture(0)
	f.payments.getErr = appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	r := newTestRouter(bursar())
	r.GET("/payments/:id", f.handler.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/pay-404", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec).Error.Code)
}

func TestPaymentHandlerReconcile(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(bursar())
	r.POST("/payments/reconcile", f.handler.ReconcileAll)
	r.POST("/payments/:id/reconcile", f.handler.Reconcile)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/reconcile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.BatchResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.Equal(t, models.BatchResult{Total: 3, Matched: 2, Failed: 1}, result)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/pay-1/reconcile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "school-1", f.reconciler.schoolID)
}

func TestPaymentHandlerReset(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(bursar())
	r.POST("/payments/:id/reset", f.handler.Reset)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/pay-1/reset", strings.NewReader(`{"admission_number":"NA20260002"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.payments.reset.AdmissionNumber)
	assert.Equal(t, "NA20260002", *f.payments.reset.AdmissionNumber)

	f.payments.reset = dto.ResetPaymentRequest{}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/pay-1/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.payments.reset.AdmissionNumber)

	f.payments.resetErr = appErrors.ErrPaymentNotResettable
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/pay-1/reset", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentHandlerExportUnmatched(t *testing.T) {
	f := newPaymentFixture(0)
	r := newTestRouter(bursar())
	r.GET("/payments/unmatched/export", f.handler.ExportUnmatched)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/unmatched/export?format=csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "unmatched.csv")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/unmatched/export?format=xlsx", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
