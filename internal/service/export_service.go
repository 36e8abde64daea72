package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type datasetRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	ContentType() string
}

type unmatchedLister interface {
	ListUnmatched(ctx context.Context, schoolID string, limit int) ([]models.Payment, error)
}

type balanceLister interface {
	StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery) ([]models.StudentBalance, bool, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportService renders operator reports as CSV or PDF downloads.
type ExportService struct {
	payments  unmatchedLister
	balances  balanceLister
	renderers map[string]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService with the CSV and PDF renderers.
func NewExportService(payments unmatchedLister, balances balanceLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		payments: payments,
		balances: balances,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// UnmatchedPayments renders the FAILED payment queue for follow-up.
func (s *ExportService) UnmatchedPayments(ctx context.Context, schoolID, format string) (*ExportFile, error) {
	renderer, format, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListUnmatched(ctx, schoolID, 0)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{Headers: []string{"transaction_code", "admission_number", "amount", "transaction_date", "error"}}
	total := decimal.Zero
	for _, p := range payments {
		reason := ""
		if p.ErrorMessage != nil {
			reason = *p.ErrorMessage
		}
		data.Rows = append(data.Rows, map[string]string{
			"transaction_code": p.TransactionCode,
			"admission_number": p.AdmissionNumber,
			"amount":           p.Amount.StringFixed(2),
			"transaction_date": p.TransactionDate.UTC().Format(time.RFC3339),
			"error":            reason,
		})
		total = total.Add(p.Amount)
	}
	data.Footer = map[string]string{
		"transaction_code": "TOTAL",
		"admission_number": strconv.Itoa(len(payments)),
		"amount":           total.StringFixed(2),
	}

	return s.render(renderer, format, "unmatched-payments", "Unmatched Payments", data)
}

// StudentBalances renders outstanding balances per student.
func (s *ExportService) StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery, format string) (*ExportFile, error) {
	renderer, format, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	balances, _, err := s.balances.StudentBalances(ctx, schoolID, query)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{Headers: []string{"admission_number", "student", "class", "total_due", "total_paid", "outstanding", "payment_status"}}
	outstanding := decimal.Zero
	for _, b := range balances {
		className := ""
		if b.ClassName != nil {
			className = *b.ClassName
		}
		data.Rows = append(data.Rows, map[string]string{
			"admission_number": b.AdmissionNumber,
			"student":          strings.TrimSpace(b.FirstName + " " + b.LastName),
			"class":            className,
			"total_due":        b.TotalDue.StringFixed(2),
			"total_paid":       b.TotalPaid.StringFixed(2),
			"outstanding":      b.Outstanding.StringFixed(2),
			"payment_status":   string(b.Status),
		})
		outstanding = outstanding.Add(b.Outstanding)
	}
	data.Footer = map[string]string{"admission_number": "TOTAL", "outstanding": outstanding.StringFixed(2)}

	return s.render(renderer, format, "student-balances", "Student Fee Balances", data)
}

func (s *ExportService) renderer(format string) (datasetRenderer, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	return renderer, format, nil
}

func (s *ExportService) render(renderer datasetRenderer, format, name, title string, data export.Dataset) (*ExportFile, error) {
	body, err := renderer.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename := fmt.Sprintf("%s-%s.%s", name, s.now().UTC().Format("20060102-150405"), format)
	s.logger.Debug("export rendered", zap.String("file", filename), zap.Int("rows", len(data.Rows)))
	return &ExportFile{Filename: filename, ContentType: renderer.ContentType(), Body: body}, nil
}
