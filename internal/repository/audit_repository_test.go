package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

func TestAuditRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(`INSERT INTO audit_logs`).WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.AuditLog{SchoolID: "school-1", Action: models.AuditActionPaymentReset, Resource: "payment", Details: types.JSONText(`{"status":200}`)}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_logs WHERE school_id = $1 AND action = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0`)).
		WithArgs("school-1", models.AuditActionPaymentUpload).
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "user_id", "action", "resource", "resource_id", "details", "ip_address", "user_agent", "created_at"}).
			AddRow("log-1", "school-1", "user-1", models.AuditActionPaymentUpload, "payment", nil, []byte(`{}`), "10.0.0.1", "curl", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM audit_logs WHERE school_id = $1 AND action = $2`)).
		WithArgs("school-1", models.AuditActionPaymentUpload).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.List(context.Background(), models.AuditFilter{SchoolID: "school-1", Action: models.AuditActionPaymentUpload})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
