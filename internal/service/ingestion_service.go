package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/jobs"
	"github.com/noah-isme/fee-recon-api/pkg/middleware/requestid"
	"github.com/noah-isme/fee-recon-api/pkg/mpesa"
)

type ingestPaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type batchRunner interface {
	ReconcileAll(ctx context.Context, schoolID string) (*models.BatchResult, error)
}

// Stored amounts are NUMERIC(12,2).
const amountScale = 2

var maxPaymentAmount = decimal.RequireFromString("9999999999.99")

// IngestionConfig controls what happens after payments are stored.
type IngestionConfig struct {
	AutoReconcile bool
	Location      *time.Location
}

// IngestionService turns paybill statement rows into UNPROCESSED payments.
type IngestionService struct {
	payments  ingestPaymentStore
	queue     jobEnqueuer
	batch     batchRunner
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       IngestionConfig
}

// NewIngestionService constructs an IngestionService. With AutoReconcile set,
// stored payments are reconciled through queue when one is provided and
// synchronously through batch otherwise.
func NewIngestionService(payments ingestPaymentStore, queue jobEnqueuer, batch batchRunner, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cfg IngestionConfig) *IngestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &IngestionService{payments: payments, queue: queue, batch: batch, validator: validate, metrics: metrics, logger: logger, cfg: cfg}
}

// IngestStatement parses an M-Pesa statement and ingests its rows.
func (s *IngestionService) IngestStatement(ctx context.Context, schoolID, uploaderID string, r io.Reader) (*dto.IngestSummary, error) {
	rows, invalid, err := mpesa.Parse(r, s.cfg.Location)
	if err != nil {
		if errors.Is(err, mpesa.ErrMissingColumns) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable statement file")
	}

	raw := make([]models.RawPayment, len(rows))
	for i, row := range rows {
		raw[i] = models.RawPayment{
			Line:            row.Line,
			AdmissionNumber: row.AdmissionNumber,
			TransactionCode: row.TransactionCode,
			Amount:          row.Amount,
			TransactionDate: row.TransactionDate,
		}
	}

	summary, err := s.Ingest(ctx, schoolID, uploaderID, raw)
	if err != nil {
		return nil, err
	}
	for _, rowErr := range invalid {
		summary.Rejected = append(summary.Rejected, dto.IngestRejection{Line: rowErr.Line, Reason: rowErr.Reason})
	}
	summary.Received += len(invalid)
	s.metrics.RecordIngest(0, 0, len(invalid))
	return summary, nil
}

// Ingest validates and stores raw payments for the school. Rows with a
// non-positive amount or missing identifiers are rejected; transaction codes
// already on record are counted as duplicates and otherwise ignored.
func (s *IngestionService) Ingest(ctx context.Context, schoolID, uploaderID string, rows []models.RawPayment) (*dto.IngestSummary, error) {
	if strings.TrimSpace(schoolID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school is required")
	}

	summary := &dto.IngestSummary{Received: len(rows), Rejected: []dto.IngestRejection{}}
	var uploadedBy *string
	if uploaderID != "" {
		uploadedBy = &uploaderID
	}

	for _, row := range rows {
		row.AdmissionNumber = strings.ToUpper(strings.TrimSpace(row.AdmissionNumber))
		row.TransactionCode = strings.TrimSpace(row.TransactionCode)
		if reason := s.rejectReason(row); reason != "" {
			summary.Rejected = append(summary.Rejected, dto.IngestRejection{Line: row.Line, TransactionCode: row.TransactionCode, Reason: reason})
			continue
		}

		payment := &models.Payment{
			SchoolID:        schoolID,
			TransactionCode: row.TransactionCode,
			AdmissionNumber: row.AdmissionNumber,
			Amount:          row.Amount,
			TransactionDate: row.TransactionDate.UTC(),
			UploadedBy:      uploadedBy,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			if errors.Is(err, appErrors.ErrDuplicateTransaction) {
				summary.Duplicates++
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store payment")
		}
		summary.Created++
	}

	s.metrics.RecordIngest(summary.Created, summary.Duplicates, len(summary.Rejected))
	s.logger.Info("payments ingested",
		zap.String("school_id", schoolID),
		zap.String("request_id", requestid.FromContext(ctx)),
		zap.Int("received", summary.Received),
		zap.Int("created", summary.Created),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("rejected", len(summary.Rejected)),
	)

	if summary.Created > 0 && s.cfg.AutoReconcile {
		if err := s.reconcile(ctx, schoolID, uploaderID, summary); err != nil {
			return nil, err
		}
	}
	return summary, nil
}

func (s *IngestionService) rejectReason(row models.RawPayment) string {
	if err := s.validator.Struct(row); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Sprintf("%s failed %s validation", verrs[0].Field(), verrs[0].Tag())
		}
		return err.Error()
	}
	switch {
	case !row.Amount.IsPositive():
		return invalidAmountMessage(row.Amount)
	case !row.Amount.Equal(row.Amount.Truncate(amountScale)):
		return fmt.Sprintf("Amount %s has more than %d decimal places", row.Amount.String(), amountScale)
	case row.Amount.GreaterThan(maxPaymentAmount):
		return fmt.Sprintf("Amount %s exceeds the maximum of %s", row.Amount.String(), maxPaymentAmount.StringFixed(amountScale))
	}
	return ""
}

func (s *IngestionService) reconcile(ctx context.Context, schoolID, uploaderID string, summary *dto.IngestSummary) error {
	if s.queue != nil {
		job := jobs.Job{ID: uuid.NewString(), SchoolID: schoolID, Trigger: "upload", UploadedBy: uploaderID}
		err := s.queue.Enqueue(job)
		if err == nil {
			summary.Queued = true
			summary.JobID = job.ID
			return nil
		}
		s.logger.Warn("reconciliation queue unavailable, running inline", zap.String("school_id", schoolID), zap.Error(err))
	}
	if s.batch == nil {
		return nil
	}
	result, err := s.batch.ReconcileAll(ctx, schoolID)
	if err != nil {
		return err
	}
	summary.Reconciliation = result
	return nil
}
