package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type studentListerStub struct {
	filter models.StudentFilter
	rows   []models.StudentBalance
	total  int
	err    error
}

func (s *studentListerStub) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentBalance, int, error) {
	s.filter = filter
	return s.rows, s.total, s.err
}

func TestStudentServiceListNormalisesFilter(t *testing.T) {
	store := &studentListerStub{rows: []models.StudentBalance{{StudentID: "stu-1"}}, total: 41}
	svc := NewStudentService(store, nil, nil)

	students, pagination, err := svc.List(context.Background(), "school-1", dto.StudentListQuery{ClassID: " class-1 ", Search: " amani "})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, models.StudentFilter{SchoolID: "school-1", ClassID: "class-1", Search: "amani", Page: 1, PageSize: 20}, store.filter)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 41}, pagination)
}

func TestStudentServiceListErrors(t *testing.T) {
	svc := NewStudentService(&studentListerStub{}, nil, nil)
	_, _, err := svc.List(context.Background(), "school-1", dto.StudentListQuery{PageSize: 1000})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	svc = NewStudentService(&studentListerStub{err: errors.New("pq: timeout")}, nil, nil)
	_, _, err = svc.List(context.Background(), "school-1", dto.StudentListQuery{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	students, _, err := NewStudentService(&studentListerStub{}, nil, nil).List(context.Background(), "school-1", dto.StudentListQuery{})
	require.NoError(t, err)
	assert.NotNil(t, students)
}
