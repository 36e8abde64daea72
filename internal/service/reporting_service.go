package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type reportingStore interface {
	StudentBalances(ctx context.Context, schoolID, classID string) ([]models.StudentBalance, error)
	StatusTotals(ctx context.Context, schoolID string) ([]models.StatusTotal, error)
	CollectionTrend(ctx context.Context, schoolID string, since time.Time) ([]models.CollectionPoint, error)
}

type reportStudentReader interface {
	FindByID(ctx context.Context, schoolID, id string) (*models.Student, error)
}

type reportObligationReader interface {
	ListByStudent(ctx context.Context, schoolID, studentID string) ([]models.FeeObligation, error)
}

const (
	defaultTrendDays = 30
	unassignedClass  = "Unassigned"
)

// ReportingService answers read-only balance and reconciliation questions.
// Results are cached per school and dropped whenever payments change.
type ReportingService struct {
	store       reportingStore
	students    reportStudentReader
	obligations reportObligationReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportingService constructs a ReportingService. cache may be nil.
func NewReportingService(store reportingStore, students reportStudentReader, obligations reportObligationReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ReportingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportingService{store: store, students: students, obligations: obligations, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// StudentBalances lists each student's position. The boolean reports a cache hit.
func (s *ReportingService) StudentBalances(ctx context.Context, schoolID string, query dto.StudentBalanceQuery) ([]models.StudentBalance, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid balance filter")
	}
	balances, hit, err := s.balances(ctx, schoolID, query.ClassID)
	if err != nil {
		return nil, false, err
	}
	if query.Status == "" {
		return balances, hit, nil
	}
	filtered := make([]models.StudentBalance, 0, len(balances))
	for _, b := range balances {
		if string(b.Status) == query.Status {
			filtered = append(filtered, b)
		}
	}
	return filtered, hit, nil
}

// ClassBalances rolls student balances up per class.
func (s *ReportingService) ClassBalances(ctx context.Context, schoolID string) ([]models.ClassBalance, bool, error) {
	balances, hit, err := s.balances(ctx, schoolID, "")
	if err != nil {
		return nil, false, err
	}

	byClass := map[string]*models.ClassBalance{}
	for _, b := range balances {
		classID, className := "", unassignedClass
		if b.ClassID != nil {
			classID = *b.ClassID
		}
		if b.ClassName != nil {
			className = *b.ClassName
		}
		rollup, ok := byClass[classID]
		if !ok {
			rollup = &models.ClassBalance{ClassID: classID, ClassName: className}
			byClass[classID] = rollup
		}
		rollup.Students++
		rollup.TotalDue = rollup.TotalDue.Add(b.TotalDue)
		rollup.TotalPaid = rollup.TotalPaid.Add(b.TotalPaid)
		rollup.Outstanding = rollup.Outstanding.Add(b.Outstanding)
		switch b.Status {
		case models.BalancePaid:
			rollup.PaidStudents++
		case models.BalancePartial:
			rollup.PartialStudents++
		case models.BalanceUnpaid:
			rollup.UnpaidStudents++
		}
	}

	classes := make([]models.ClassBalance, 0, len(byClass))
	for _, rollup := range byClass {
		classes = append(classes, *rollup)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ClassName < classes[j].ClassName })
	return classes, hit, nil
}

// SchoolBalance rolls every student of the school into a single figure.
func (s *ReportingService) SchoolBalance(ctx context.Context, schoolID string) (*models.SchoolBalance, bool, error) {
	balances, hit, err := s.balances(ctx, schoolID, "")
	if err != nil {
		return nil, false, err
	}
	total := &models.SchoolBalance{SchoolID: schoolID, Students: len(balances)}
	for _, b := range balances {
		total.TotalDue = total.TotalDue.Add(b.TotalDue)
		total.TotalPaid = total.TotalPaid.Add(b.TotalPaid)
		total.Outstanding = total.Outstanding.Add(b.Outstanding)
	}
	if total.TotalDue.IsPositive() {
		total.CollectionRate = total.TotalPaid.Div(total.TotalDue).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return total, hit, nil
}

// ReconciliationSummary reports payment count and value per status.
func (s *ReportingService) ReconciliationSummary(ctx context.Context, schoolID string) (*models.ReconciliationSummary, bool, error) {
	key := reportCacheKey(schoolID, "reconciliation")
	var cached models.ReconciliationSummary
	if s.lookup(ctx, key, &cached) {
		return &cached, true, nil
	}

	totals, err := s.store.StatusTotals(ctx, schoolID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reconciliation summary")
	}
	summary := &models.ReconciliationSummary{
		SchoolID:    schoolID,
		Unprocessed: models.StatusTotal{Status: models.PaymentStatusUnprocessed},
		Matched:     models.StatusTotal{Status: models.PaymentStatusMatched},
		Failed:      models.StatusTotal{Status: models.PaymentStatusFailed},
	}
	for _, row := range totals {
		summary.Add(row)
	}
	s.remember(ctx, key, summary)
	return summary, false, nil
}

// CollectionTrend returns matched amounts per day over the requested window.
func (s *ReportingService) CollectionTrend(ctx context.Context, schoolID string, query dto.TrendQuery) ([]models.CollectionPoint, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trend window")
	}
	days := query.Days
	if days <= 0 {
		days = defaultTrendDays
	}

	key := reportCacheKey(schoolID, "trend", strconv.Itoa(days))
	var cached []models.CollectionPoint
	if s.lookup(ctx, key, &cached) {
		return cached, true, nil
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))
	points, err := s.store.CollectionTrend(ctx, schoolID, since)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load collection trend")
	}
	if points == nil {
		points = []models.CollectionPoint{}
	}
	s.remember(ctx, key, points)
	return points, false, nil
}

// StudentFees returns the ledger view of one student.
func (s *ReportingService) StudentFees(ctx context.Context, schoolID, studentID string) (*dto.StudentFeesResponse, error) {
	student, err := s.students.FindByID(ctx, schoolID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	obligations, err := s.obligations.ListByStudent(ctx, schoolID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student fees")
	}
	models.SortForAllocation(obligations)

	resp := &dto.StudentFeesResponse{Student: *student, StudentName: student.FullName(), Obligations: obligations}
	if resp.Obligations == nil {
		resp.Obligations = []models.FeeObligation{}
	}
	unpaid := 0
	for _, o := range obligations {
		resp.TotalDue = resp.TotalDue.Add(o.AmountDue)
		resp.TotalPaid = resp.TotalPaid.Add(o.AmountPaid)
		if !o.IsPaid {
			unpaid++
		}
	}
	resp.Outstanding = resp.TotalDue.Sub(resp.TotalPaid)
	resp.Status = models.ClassifyBalance(resp.Outstanding, unpaid, len(obligations))
	return resp, nil
}

// InvalidateSchool drops every cached report of the school.
func (s *ReportingService) InvalidateSchool(ctx context.Context, schoolID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, reportCachePattern(schoolID))
}

func (s *ReportingService) balances(ctx context.Context, schoolID, classID string) ([]models.StudentBalance, bool, error) {
	key := reportCacheKey(schoolID, "students", classID)
	var cached []models.StudentBalance
	if s.lookup(ctx, key, &cached) {
		return cached, true, nil
	}

	balances, err := s.store.StudentBalances(ctx, schoolID, classID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student balances")
	}
	if balances == nil {
		balances = []models.StudentBalance{}
	}
	s.remember(ctx, key, balances)
	return balances, false, nil
}

func (s *ReportingService) remember(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, 0)
}

// lookup treats cache backend errors as misses; reports are always computable.
func (s *ReportingService) lookup(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		return false
	}
	return hit
}
