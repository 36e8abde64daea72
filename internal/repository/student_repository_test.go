package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var studentRowColumns = []string{"id", "school_id", "admission_number", "first_name", "last_name", "class_id", "created_at"}

func TestStudentRepositoryFindByAdmissionNumber(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`SELECT .* FROM students WHERE school_id = \$1 AND UPPER\(admission_number\) = \$2`).
		WithArgs("school-1", "NA20260001").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("stu-1", "school-1", "NA20260001", "Amani", "Otieno", "class-1", time.Now()))

	student, err := repo.FindByAdmissionNumber(context.Background(), nil, "school-1", " na20260001 ")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
	assert.Equal(t, "Amani Otieno", student.FullName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByAdmissionNumberMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM students WHERE school_id = \$1`).
		WithArgs("school-1", "NA20269999").
		WillReturnRows(sqlmock.NewRows(studentRowColumns))

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	_, err = repo.FindByAdmissionNumber(context.Background(), tx, "school-1", "NA20269999")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListPagesAndSearches(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	columns := []string{"student_id", "admission_number", "first_name", "last_name", "class_id", "class_name", "total_due", "total_paid", "outstanding", "fee_count", "unpaid_count"}
	mock.ExpectQuery(`(?s)FROM students s.*WHERE s.school_id = \$1 AND s.class_id = \$2 AND \(LOWER\(s.first_name .*\$3.*\$3\).*LIMIT 10 OFFSET 10`).
		WithArgs("school-1", "class-1", "%otieno%").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("stu-1", "NA20260001", "Amani", "Otieno", "class-1", "Form 1A", "66000.00", "20000.00", "46000.00", 4, 3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students s WHERE s.school_id = \$1 AND s.class_id = \$2`).
		WithArgs("school-1", "class-1", "%otieno%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	students, total, err := repo.List(context.Background(), models.StudentFilter{SchoolID: "school-1", ClassID: "class-1", Search: " Otieno ", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, students, 1)
	assert.Equal(t, models.BalancePartial, students[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListDefaultsPage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`(?s)WHERE s.school_id = \$1\s+GROUP BY.*LIMIT 20 OFFSET 0`).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students s WHERE s.school_id = \$1$`).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	students, total, err := repo.List(context.Background(), models.StudentFilter{SchoolID: "school-1", PageSize: 500})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
