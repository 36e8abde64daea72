package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// FeeLedgerRepository persists student fee obligations.
type FeeLedgerRepository struct {
	db *sqlx.DB
}

// NewFeeLedgerRepository constructs a FeeLedgerRepository.
func NewFeeLedgerRepository(db *sqlx.DB) *FeeLedgerRepository {
	return &FeeLedgerRepository{db: db}
}

func (r *FeeLedgerRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const obligationSelect = `SELECT so.id, so.student_id, so.fee_item_id, fi.name AS fee_item_name, so.academic_year_id, ay.name AS academic_year_name,
ay.start_date AS academic_year_start, so.term, so.amount_due, so.amount_paid, so.is_paid, so.created_at, so.updated_at
FROM student_fees so
JOIN fee_items fi ON fi.id = so.fee_item_id
JOIN academic_years ay ON ay.id = so.academic_year_id`

// ListUnpaidForUpdate returns a student's unsettled obligations, oldest first,
// and row-locks them for the surrounding transaction.
func (r *FeeLedgerRepository) ListUnpaidForUpdate(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]models.FeeObligation, error) {
	query := obligationSelect + `
WHERE so.student_id = $1 AND so.is_paid = FALSE
ORDER BY ay.start_date ASC, so.term ASC, so.id ASC
FOR UPDATE OF so`
	var obligations []models.FeeObligation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &obligations, query, studentID); err != nil {
		return nil, fmt.Errorf("list unpaid obligations: %w", err)
	}
	return obligations, nil
}

// ApplyPayment adds amount to an obligation in the database and recomputes
// is_paid from the stored values, returning the updated figures.
func (r *FeeLedgerRepository) ApplyPayment(ctx context.Context, exec sqlx.ExtContext, obligationID string, amount decimal.Decimal) (*models.FeeObligation, error) {
	const query = `UPDATE student_fees
SET amount_paid = amount_paid + $2, is_paid = (amount_paid + $2) >= amount_due, updated_at = NOW()
WHERE id = $1 AND is_paid = FALSE
RETURNING id, student_id, fee_item_id, academic_year_id, term, amount_due, amount_paid, is_paid, created_at, updated_at`
	var obligation models.FeeObligation
	if err := sqlx.GetContext(ctx, r.exec(exec), &obligation, query, obligationID, amount); err != nil {
		return nil, fmt.Errorf("apply payment to obligation %s: %w", obligationID, err)
	}
	return &obligation, nil
}

// ListByStudent returns every obligation for a student of the school.
func (r *FeeLedgerRepository) ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.FeeObligation, error) {
	query := obligationSelect + `
JOIN students s ON s.id = so.student_id
WHERE so.student_id = $1 AND s.school_id = $2
ORDER BY ay.start_date ASC, so.term ASC, so.id ASC`
	var obligations []models.FeeObligation
	if err := r.db.SelectContext(ctx, &obligations, query, studentID, schoolID); err != nil {
		return nil, fmt.Errorf("list student obligations: %w", err)
	}
	return obligations, nil
}
