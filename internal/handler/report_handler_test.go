package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/internal/service"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type fakeReports struct {
	studentQuery dto.StudentBalanceQuery
	trendQuery   dto.TrendQuery
	hit          bool
}

func (f *fakeReports) StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery) ([]models.StudentBalance, bool, error) {
	f.studentQuery = query
	return []models.StudentBalance{{StudentID: "stu-1", Status: models.BalancePartial}}, f.hit, nil
}

func (f *fakeReports) ClassBalances(ctx context.Context, schoolID string) ([]models.ClassBalance, bool, error) {
	return []models.ClassBalance{}, f.hit, nil
}

func (f *fakeReports) SchoolBalance(ctx context.Context, schoolID string) (*models.SchoolBalance, bool, error) {
	return &models.SchoolBalance{SchoolID: schoolID, CollectionRate: decimal.NewFromFloat(83.33)}, f.hit, nil
}

func (f *fakeReports) ReconciliationSummary(ctx context.Context, schoolID string) (*models.ReconciliationSummary, bool, error) {
	return nil, false, errors.New("db down")
}

func (f *fakeReports) CollectionTrend(ctx context.Context, schoolID string, query dto.TrendQuery) ([]models.CollectionPoint, bool, error) {
	f.trendQuery = query
	return []models.CollectionPoint{}, f.hit, nil
}

type fakeBalanceExporter struct {
	format string
}

func (f *fakeBalanceExporter) StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery, format string) (*service.ExportFile, error) {
	f.format = format
	return &service.ExportFile{Filename: "student-balances.pdf", ContentType: "application/pdf", Body: []byte("%PDF-1.3")}, nil
}

type fakeAuditTrail struct {
	query dto.AuditQuery
}

func (f *fakeAuditTrail) List(ctx context.Context, schoolID string, query dto.AuditQuery) ([]models.AuditLog, *models.Pagination, error) {
	f.query = query
	return []models.AuditLog{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func TestReportHandlerStudentBalancesReportsCacheHit(t *testing.T) {
	reports := &fakeReports{hit: true}
	h := NewReportHandler(reports, &fakeBalanceExporter{}, &fakeAuditTrail{})
	r := newTestRouter(bursar())
	r.GET("/reports/students", h.StudentBalances)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/students?class_id=class-1&status=PARTIAL", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.StudentBalanceQuery{ClassID: "class-1", Status: "PARTIAL"}, reports.studentQuery)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var balances []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &balances))
	require.Len(t, balances, 1)
	assert.Equal(t, "PARTIAL", balances[0]["payment_status"])
}

func TestReportHandlerSchoolAndTrends(t *testing.T) {
	reports := &fakeReports{}
	h := NewReportHandler(reports, &fakeBalanceExporter{}, &fakeAuditTrail{})
	r := newTestRouter(bursar())
	r.GET("/reports/school", h.SchoolBalance)
	r.GET("/reports/trends", h.Trends)
	r.GET("/reports/classes", h.ClassBalances)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/school", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeEnvelope(t, rec).Meta["cache_hit"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/trends?days=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, reports.trendQuery.Days)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/trends?days=soon", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/classes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReportHandlerReconciliationError(t *testing.T) {
	h := NewReportHandler(&fakeReports{}, &fakeBalanceExporter{}, &fakeAuditTrail{})
	r := newTestRouter(bursar())
	r.GET("/reports/reconciliation", h.Reconciliation)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/reconciliation", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, appErrors.ErrInternal.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestReportHandlerExportAndAudit(t *testing.T) {
	exporter := &fakeBalanceExporter{}
	audit := &fakeAuditTrail{}
	h := NewReportHandler(&fakeReports{}, exporter, audit)
	r := newTestRouter(bursar())
	r.GET("/reports/students/export", h.ExportStudentBalances)
	r.GET("/reports/audit-trail", h.AuditTrail)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/students/export?format=pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pdf", exporter.format)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/audit-trail?action=PAYMENT_RESET&page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.AuditQuery{Action: "PAYMENT_RESET", Page: 2}, audit.query)
}
