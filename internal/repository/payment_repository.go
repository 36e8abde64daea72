package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

// PaymentRepository persists inbound payment records.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const paymentColumns = `id, school_id, transaction_code, student_admission_number, amount, transaction_date, status, matched_fee_id, error_message, uploaded_by, processed_at, created_at, updated_at`

// Create stores a new UNPROCESSED payment. A transaction code that already
// exists yields ErrDuplicateTransaction and leaves the stored record untouched.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.Status = models.PaymentStatusUnprocessed
	payment.CreatedAt = now
	payment.UpdatedAt = now

	const query = `INSERT INTO payments (id, school_id, transaction_code, student_admission_number, amount, transaction_date, status, uploaded_by, created_at, updated_at)
VALUES (:id, :school_id, :transaction_code, :student_admission_number, :amount, :transaction_date, :status, :uploaded_by, :created_at, :updated_at)
ON CONFLICT (transaction_code) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create payment rows affected: %w", err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrDuplicateTransaction, fmt.Sprintf("transaction %s already recorded", payment.TransactionCode))
	}
	return nil
}

// LockByID loads a payment and row-locks it for the surrounding transaction.
func (r *PaymentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 FOR UPDATE`, paymentColumns)
	var payment models.Payment
	if err := sqlx.GetContext(ctx, r.exec(exec), &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// SaveOutcome records the reconciliation result. Only UNPROCESSED rows are
// updated; anything else means another writer got there first.
func (r *PaymentRepository) SaveOutcome(ctx context.Context, exec sqlx.ExtContext, payment *models.Payment) error {
	now := time.Now().UTC()
	payment.ProcessedAt = &now
	payment.UpdatedAt = now

	const query = `UPDATE payments SET status = $2, matched_fee_id = $3, error_message = $4, processed_at = $5, updated_at = $5
WHERE id = $1 AND status = 'UNPROCESSED'`
	res, err := r.exec(exec).ExecContext(ctx, query, payment.ID, payment.Status, payment.MatchedFeeID, payment.ErrorMessage, now)
	if err != nil {
		return fmt.Errorf("save payment outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save payment outcome rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("save payment outcome: payment %s is no longer unprocessed", payment.ID)
	}
	return nil
}

// FindByID returns a payment by id or sql.ErrNoRows.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListUnprocessedIDs returns the ids of UNPROCESSED payments in arrival order.
// An empty schoolID spans every school.
func (r *PaymentRepository) ListUnprocessedIDs(ctx context.Context, schoolID string) ([]string, error) {
	query := `SELECT id FROM payments WHERE status = 'UNPROCESSED'`
	args := []interface{}{}
	if schoolID != "" {
		query += ` AND school_id = $1`
		args = append(args, schoolID)
	}
	query += ` ORDER BY transaction_date ASC, created_at ASC`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("list unprocessed payments: %w", err)
	}
	return ids, nil
}

// MarkFailed moves an UNPROCESSED payment to FAILED outside the engine's
// transaction. Returns false when the payment had already left UNPROCESSED.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id, message string) (bool, error) {
	const query = `UPDATE payments SET status = 'FAILED', error_message = $2, processed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = 'UNPROCESSED'`
	res, err := r.db.ExecContext(ctx, query, id, message)
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark payment failed rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns payments matching the filter with the total count.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	args := []interface{}{filter.SchoolID}
	conditions := []string{"school_id = $1"}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.AdmissionNumber != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(student_admission_number) = $%d", len(args)+1))
		args = append(args, strings.ToUpper(filter.AdmissionNumber))
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("transaction_date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY transaction_date DESC, id ASC LIMIT %d OFFSET %d`, paymentColumns, where, size, offset)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM payments WHERE %s`, where), args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListFailed returns FAILED payments, most recent transaction first.
// A limit of zero returns every row.
func (r *PaymentRepository) ListFailed(ctx context.Context, schoolID string, limit int) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE school_id = $1 AND status = 'FAILED' ORDER BY transaction_date DESC, id ASC`, paymentColumns)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, schoolID); err != nil {
		return nil, fmt.Errorf("list failed payments: %w", err)
	}
	return payments, nil
}

// Reset returns a FAILED payment to UNPROCESSED so it can be reconciled again,
// optionally correcting the admission number it was paid against.
// Returns false when no FAILED payment with that id exists in the school.
func (r *PaymentRepository) Reset(ctx context.Context, schoolID, id string, admissionNumber *string) (bool, error) {
	const query = `UPDATE payments
SET status = 'UNPROCESSED', matched_fee_id = NULL, error_message = NULL, processed_at = NULL,
    student_admission_number = COALESCE($3, student_admission_number), updated_at = NOW()
WHERE id = $1 AND school_id = $2 AND status = 'FAILED'`
	res, err := r.db.ExecContext(ctx, query, id, schoolID, admissionNumber)
	if err != nil {
		return false, fmt.Errorf("reset payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset payment rows affected: %w", err)
	}
	return affected > 0, nil
}
