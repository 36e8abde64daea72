package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// ReportingRepository runs read-only aggregate queries over the ledger and payments.
type ReportingRepository struct {
	db *sqlx.DB
}

// NewReportingRepository constructs a ReportingRepository.
func NewReportingRepository(db *sqlx.DB) *ReportingRepository {
	return &ReportingRepository{db: db}
}

// StudentBalances returns one row per student of the school, optionally
// limited to a class. Status is derived from the aggregated counts.
func (r *ReportingRepository) StudentBalances(ctx context.Context, schoolID, classID string) ([]models.StudentBalance, error) {
	query := `SELECT s.id AS student_id, s.admission_number, s.first_name, s.last_name, s.class_id, c.name AS class_name,
COALESCE(SUM(so.amount_due), 0) AS total_due,
COALESCE(SUM(so.amount_paid), 0) AS total_paid,
COALESCE(SUM(so.amount_due - so.amount_paid), 0) AS outstanding,
COUNT(so.id) AS fee_count,
COUNT(so.id) FILTER (WHERE so.is_paid = FALSE) AS unpaid_count
FROM students s
LEFT JOIN classes c ON c.id = s.class_id
LEFT JOIN student_fees so ON so.student_id = s.id
WHERE s.school_id = $1`
	args := []interface{}{schoolID}
	if classID != "" {
		query += ` AND s.class_id = $2`
		args = append(args, classID)
	}
	query += `
GROUP BY s.id, s.admission_number, s.first_name, s.last_name, s.class_id, c.name
ORDER BY s.admission_number ASC`

	var balances []models.StudentBalance
	if err := r.db.SelectContext(ctx, &balances, query, args...); err != nil {
		return nil, fmt.Errorf("list student balances: %w", err)
	}
	for i := range balances {
		balances[i].Classify()
	}
	return balances, nil
}

// StatusTotals returns payment count and value per status for the school.
func (r *ReportingRepository) StatusTotals(ctx context.Context, schoolID string) ([]models.StatusTotal, error) {
	const query = `SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
FROM payments WHERE school_id = $1 GROUP BY status ORDER BY status`
	var totals []models.StatusTotal
	if err := r.db.SelectContext(ctx, &totals, query, schoolID); err != nil {
		return nil, fmt.Errorf("payment status totals: %w", err)
	}
	return totals, nil
}

// CollectionTrend returns matched payment value per day since the given instant.
func (r *ReportingRepository) CollectionTrend(ctx context.Context, schoolID string, since time.Time) ([]models.CollectionPoint, error) {
	const query = `SELECT date_trunc('day', transaction_date) AS day, COALESCE(SUM(amount), 0) AS amount, COUNT(*) AS payments
FROM payments
WHERE school_id = $1 AND status = 'MATCHED' AND transaction_date >= $2
GROUP BY 1 ORDER BY 1`
	var points []models.CollectionPoint
	if err := r.db.SelectContext(ctx, &points, query, schoolID, since); err != nil {
		return nil, fmt.Errorf("collection trend: %w", err)
	}
	return points, nil
}
