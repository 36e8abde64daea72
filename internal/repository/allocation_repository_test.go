package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

func TestAllocationRepositoryCreateBatch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO payment_allocations`).
		WithArgs(sqlmock.AnyArg(), "pay-1", "fee-1", 0, decimal.NewFromInt(5000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO payment_allocations`).
		WithArgs(sqlmock.AnyArg(), "pay-1", "fee-3", 1, decimal.NewFromInt(2000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	allocations := []models.Allocation{
		{PaymentID: "pay-1", ObligationID: "fee-1", Sequence: 0, AmountApplied: decimal.NewFromInt(5000)},
		{PaymentID: "pay-1", ObligationID: "fee-3", Sequence: 1, AmountApplied: decimal.NewFromInt(2000)},
	}
	require.NoError(t, repo.CreateBatch(context.Background(), tx, allocations))
	assert.NotEmpty(t, allocations[0].ID)
	assert.False(t, allocations[1].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRepositoryCreateBatchRequiresTx(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	err := repo.CreateBatch(context.Background(), nil, []models.Allocation{{PaymentID: "pay-1"}})
	assert.Error(t, err)
}

func TestAllocationRepositoryListByPayment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAllocationRepository(db)

	mock.ExpectQuery(`FROM payment_allocations WHERE payment_id = \$1 ORDER BY sequence ASC`).
		WithArgs("pay-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "payment_id", "obligation_id", "sequence", "amount_applied", "created_at"}).
			AddRow("alloc-1", "pay-1", "fee-1", 0, "5000.00", time.Now()))

	allocations, err := repo.ListByPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.True(t, allocations[0].AmountApplied.Equal(decimal.NewFromInt(5000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
