package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fee-recon-api/internal/models"
)

// StudentRepository reads the student roll.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.QueryerContext) sqlx.QueryerContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const studentColumns = `id, school_id, admission_number, first_name, last_name, class_id, created_at`

// FindByAdmissionNumber looks a student up by the account reference quoted on a
// payment. Matching is case-insensitive and always scoped to one school.
// Returns sql.ErrNoRows when no student matches.
func (r *StudentRepository) FindByAdmissionNumber(ctx context.Context, exec sqlx.QueryerContext, schoolID, admissionNumber string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE school_id = $1 AND UPPER(admission_number) = $2`, studentColumns)
	var student models.Student
	if err := sqlx.GetContext(ctx, r.exec(exec), &student, query, schoolID, strings.ToUpper(strings.TrimSpace(admissionNumber))); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByID returns a student belonging to the school.
func (r *StudentRepository) FindByID(ctx context.Context, schoolID, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE school_id = $1 AND id = $2`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, schoolID, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns a page of the school's roll with each student's fee position,
// ordered by admission number, together with the total number of matches.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentBalance, int, error) {
	conditions := []string{"s.school_id = $1"}
	args := []interface{}{filter.SchoolID}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.first_name || ' ' || s.last_name) LIKE $%d OR LOWER(s.admission_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(search)+"%")
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

	query := fmt.Sprintf(`SELECT s.id AS student_id, s.admission_number, s.first_name, s.last_name, s.class_id, c.name AS class_name,
COALESCE(SUM(so.amount_due), 0) AS total_due,
COALESCE(SUM(so.amount_paid), 0) AS total_paid,
COALESCE(SUM(so.amount_due - so.amount_paid), 0) AS outstanding,
COUNT(so.id) AS fee_count,
COUNT(so.id) FILTER (WHERE so.is_paid = FALSE) AS unpaid_count
FROM students s
LEFT JOIN classes c ON c.id = s.class_id
LEFT JOIN student_fees so ON so.student_id = s.id
WHERE %s
GROUP BY s.id, s.admission_number, s.first_name, s.last_name, s.class_id, c.name
ORDER BY s.admission_number ASC LIMIT %d OFFSET %d`, where, size, (page-1)*size)

	var students []models.StudentBalance
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	for i := range students {
		students[i].Classify()
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) FROM students s WHERE %s", where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}
