package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService records operator actions against the fee ledger.
type AuditService struct {
	repo   auditStore
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record persists an entry. Failures are logged and never surface to the caller.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if s == nil || s.repo == nil || entry == nil || entry.SchoolID == "" {
		return
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log",
			zap.String("school_id", entry.SchoolID),
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}

// List returns the school's audit trail, newest first.
func (s *AuditService) List(ctx context.Context, schoolID string, query dto.AuditQuery) ([]models.AuditLog, *models.Pagination, error) {
	filter := models.AuditFilter{SchoolID: schoolID, Action: query.Action, Page: query.Page, PageSize: query.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}
