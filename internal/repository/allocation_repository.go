package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// AllocationRepository persists the split of each payment across obligations.
type AllocationRepository struct {
	db *sqlx.DB
}

// NewAllocationRepository constructs an AllocationRepository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// CreateBatch inserts allocations inside the caller's transaction, assigning
// ids and timestamps in place.
func (r *AllocationRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, allocations []models.Allocation) error {
	if exec == nil {
		return fmt.Errorf("nil transaction provided")
	}
	now := time.Now().UTC()
	for i := range allocations {
		payload := allocations[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		if payload.CreatedAt.IsZero() {
			payload.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO payment_allocations (id, payment_id, obligation_id, sequence, amount_applied, created_at) VALUES (:id, :payment_id, :obligation_id, :sequence, :amount_applied, :created_at)`, &payload); err != nil {
			return fmt.Errorf("insert payment allocation: %w", err)
		}
		allocations[i] = payload
	}
	return nil
}

// ListByPayment returns the allocations a payment produced in allocation order.
func (r *AllocationRepository) ListByPayment(ctx context.Context, paymentID string) ([]models.Allocation, error) {
	const query = `SELECT id, payment_id, obligation_id, sequence, amount_applied, created_at FROM payment_allocations WHERE payment_id = $1 ORDER BY sequence ASC`
	var allocations []models.Allocation
	if err := r.db.SelectContext(ctx, &allocations, query, paymentID); err != nil {
		return nil, fmt.Errorf("list payment allocations: %w", err)
	}
	return allocations, nil
}
