package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type paymentQueryStore interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	ListFailed(ctx context.Context, schoolID string, limit int) ([]models.Payment, error)
	Reset(ctx context.Context, schoolID, id string, admissionNumber *string) (bool, error)
}

type allocationReader interface {
	ListByPayment(ctx context.Context, paymentID string) ([]models.Allocation, error)
}

// PaymentService exposes payment records to operators.
type PaymentService struct {
	payments    paymentQueryStore
	allocations allocationReader
	reports     reportInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(payments paymentQueryStore, allocations allocationReader, reports reportInvalidator, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{payments: payments, allocations: allocations, reports: reports, validator: validate, logger: logger}
}

// List returns a page of the school's payments.
func (s *PaymentService) List(ctx context.Context, schoolID string, query dto.PaymentListQuery) ([]models.Payment, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment filter")
	}

	filter := models.PaymentFilter{SchoolID: schoolID, AdmissionNumber: strings.TrimSpace(query.AdmissionNumber), Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status, err := models.ParsePaymentStatus(query.Status)
		if err != nil {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		filter.Status = &status
	}
	var err error
	if filter.From, err = parseFilterTime(query.From, false); err != nil {
		return nil, nil, err
	}
	if filter.To, err = parseFilterTime(query.To, true); err != nil {
		return nil, nil, err
	}

	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return payments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a payment of the school together with its allocations.
func (s *PaymentService) Get(ctx context.Context, schoolID, id string) (*models.PaymentDetail, error) {
	payment, err := s.find(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocations.ListByPayment(ctx, payment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	if allocations == nil {
		allocations = []models.Allocation{}
	}
	return &models.PaymentDetail{Payment: *payment, Allocations: allocations}, nil
}

// ListUnmatched returns FAILED payments, most recent first.
func (s *PaymentService) ListUnmatched(ctx context.Context, schoolID string, limit int) ([]models.Payment, error) {
	payments, err := s.payments.ListFailed(ctx, schoolID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unmatched payments")
	}
	return payments, nil
}

// Reset makes a FAILED payment eligible for reconciliation again. MATCHED and
// UNPROCESSED payments cannot be reset.
func (s *PaymentService) Reset(ctx context.Context, schoolID, id string, req dto.ResetPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	if req.AdmissionNumber != nil {
		normalized := strings.ToUpper(strings.TrimSpace(*req.AdmissionNumber))
		req.AdmissionNumber = &normalized
	}

	payment, err := s.find(ctx, schoolID, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusFailed {
		return nil, appErrors.Clone(appErrors.ErrPaymentNotResettable, "only FAILED payments can be reset")
	}

	updated, err := s.payments.Reset(ctx, schoolID, id, req.AdmissionNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset payment")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrPaymentNotResettable, "payment changed status while resetting")
	}
	if s.reports != nil {
		if err := s.reports.InvalidateSchool(ctx, schoolID); err != nil {
			s.logger.Warn("failed to invalidate report cache", zap.String("school_id", schoolID), zap.Error(err))
		}
	}
	s.logger.Info("payment reset", zap.String("payment_id", id), zap.String("school_id", schoolID))
	return s.find(ctx, schoolID, id)
}

func (s *PaymentService) find(ctx context.Context, schoolID, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}
	return payment, nil
}

// parseFilterTime accepts RFC3339 timestamps or plain dates. A plain date used
// as an upper bound covers the whole day.
func parseFilterTime(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dates must be RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
