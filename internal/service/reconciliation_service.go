package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type reconcilePaymentStore interface {
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error)
	SaveOutcome(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error
}

type reconcileStudentFinder interface {
	FindByAdmissionNumber(ctx context.Context, exec sqlx.QueryerContext, schoolID, admissionNumber string) (*models.Student, error)
}

type reconcileLedger interface {
	ListUnpaidForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.FeeObligation, error)
	ApplyPayment(ctx context.Context, exec sqlx.ExtContext, obligationID string, amount decimal.Decimal) (*models.FeeObligation, error)
}

type allocationWriter interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, allocations []models.Allocation) error
}

// ReconciliationService applies one payment to a student's fee ledger.
type ReconciliationService struct {
	tx          txProvider
	payments    reconcilePaymentStore
	students    reconcileStudentFinder
	ledger      reconcileLedger
	allocations allocationWriter
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewReconciliationService wires the engine dependencies.
func NewReconciliationService(
	tx txProvider,
	payments reconcilePaymentStore,
	students reconcileStudentFinder,
	ledger reconcileLedger,
	allocations allocationWriter,
	metrics *MetricsService,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		tx:          tx,
		payments:    payments,
		students:    students,
		ledger:      ledger,
		allocations: allocations,
		metrics:     metrics,
		logger:      logger,
	}
}

// Reconcile resolves the payment's student, allocates the amount across their
// unpaid obligations oldest first and records the outcome, all in a single
// transaction. Business failures (unknown student, nothing owed, bad amount)
// are recorded on the payment as FAILED and returned as an outcome; only
// storage failures are returned as errors, in which case nothing is written.
//
// A payment that is no longer UNPROCESSED is left alone and reported as
// skipped. An empty schoolID skips the tenant check.
func (s *ReconciliationService) Reconcile(ctx context.Context, schoolID, paymentID string) (*models.ReconcileOutcome, error) {
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	payment, err := s.payments.LockByID(ctx, tx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if schoolID != "" && payment.SchoolID != schoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}

	if payment.Status != models.PaymentStatusUnprocessed {
		return &models.ReconcileOutcome{
			PaymentID:    payment.ID,
			Status:       payment.Status,
			MatchedFeeID: payment.MatchedFeeID,
			ErrorMessage: payment.ErrorMessage,
			Remaining:    decimal.Zero,
			Skipped:      true,
		}, nil
	}

	outcome, err := s.allocate(ctx, tx, payment)
	if err != nil {
		return nil, err
	}

	payment.Status = outcome.Status
	payment.MatchedFeeID = outcome.MatchedFeeID
	payment.ErrorMessage = outcome.ErrorMessage
	if err := s.payments.SaveOutcome(ctx, tx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save payment outcome")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit reconciliation")
	}
	committed = true

	s.metrics.RecordReconciliation(outcome.Status)
	s.logger.Debug("payment reconciled",
		zap.String("payment_id", payment.ID),
		zap.String("school_id", payment.SchoolID),
		zap.String("transaction_code", payment.TransactionCode),
		zap.String("status", string(outcome.Status)),
		zap.Int("allocations", len(outcome.Allocations)),
		zap.String("remaining", outcome.Remaining.StringFixed(2)),
	)
	return outcome, nil
}

func (s *ReconciliationService) allocate(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) (*models.ReconcileOutcome, error) {
	if !payment.Amount.IsPositive() {
		return failedOutcome(payment, invalidAmountMessage(payment.Amount)), nil
	}

	student, err := s.students.FindByAdmissionNumber(ctx, tx, payment.SchoolID, payment.AdmissionNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return failedOutcome(payment, studentNotFoundMessage(payment.AdmissionNumber)), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	obligations, err := s.ledger.ListUnpaidForUpdate(ctx, tx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unpaid obligations")
	}
	obligations = owing(obligations)
	if len(obligations) == 0 {
		return failedOutcome(payment, msgNoUnpaidFees), nil
	}
	models.SortForAllocation(obligations)

	steps, remaining := planAllocation(payment.Amount, obligations)

	allocations := make([]models.Allocation, 0, len(steps))
	for i, step := range steps {
		if _, err := s.ledger.ApplyPayment(ctx, tx, step.obligation.ID, step.amount); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply payment to obligation")
		}
		allocations = append(allocations, models.Allocation{
			PaymentID:     payment.ID,
			ObligationID:  step.obligation.ID,
			Sequence:      i,
			AmountApplied: step.amount,
		})
	}
	if err := s.allocations.CreateBatch(ctx, tx, allocations); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record allocations")
	}

	matchedFeeID := steps[0].obligation.ID
	outcome := &models.ReconcileOutcome{
		PaymentID:    payment.ID,
		Status:       models.PaymentStatusMatched,
		MatchedFeeID: &matchedFeeID,
		Allocations:  allocations,
		Remaining:    remaining,
	}
	if remaining.IsPositive() {
		note := overpaymentMessage(remaining)
		outcome.ErrorMessage = &note
	}
	return outcome, nil
}

func failedOutcome(payment *models.Payment, message string) *models.ReconcileOutcome {
	return &models.ReconcileOutcome{
		PaymentID:    payment.ID,
		Status:       models.PaymentStatusFailed,
		ErrorMessage: &message,
		Remaining:    payment.Amount,
	}
}
