package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/jobs"
)

type paymentReconciler interface {
	Reconcile(ctx context.Context, schoolID, paymentID string) (*models.ReconcileOutcome, error)
}

type batchPaymentStore interface {
	ListUnprocessedIDs(ctx context.Context, schoolID string) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	MarkFailed(ctx context.Context, id, message string) (bool, error)
}

type reportInvalidator interface {
	InvalidateSchool(ctx context.Context, schoolID string) error
}

// BatchReconcilerConfig tunes batch runs.
type BatchReconcilerConfig struct {
	Workers int
}

// BatchReconciler runs the engine over every UNPROCESSED payment.
type BatchReconciler struct {
	engine   paymentReconciler
	payments batchPaymentStore
	reports  reportInvalidator
	metrics  *MetricsService
	workers  int
	logger   *zap.Logger
}

// NewBatchReconciler constructs a BatchReconciler. reports may be nil.
func NewBatchReconciler(engine paymentReconciler, payments batchPaymentStore, reports reportInvalidator, metrics *MetricsService, cfg BatchReconcilerConfig, logger *zap.Logger) *BatchReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &BatchReconciler{engine: engine, payments: payments, reports: reports, metrics: metrics, workers: cfg.Workers, logger: logger}
}

type batchItem struct {
	status   models.PaymentStatus
	schoolID string
}

// ReconcileAll reconciles every UNPROCESSED payment of the school, or of every
// school when schoolID is empty. A payment whose reconciliation errors or
// panics is marked FAILED and the run moves on. Tallies reflect the status
// each payment holds once the run is over.
func (b *BatchReconciler) ReconcileAll(ctx context.Context, schoolID string) (*models.BatchResult, error) {
	start := time.Now()
	ids, err := b.payments.ListUnprocessedIDs(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unprocessed payments")
	}

	items := make([]batchItem, len(ids))
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup
	for i, id := range ids {
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()
			items[i] = b.process(ctx, schoolID, id)
		}(i, id)
	}
	wg.Wait()

	result := models.BatchResult{Total: len(ids)}
	touched := map[string]struct{}{}
	for _, item := range items {
		switch item.status {
		case models.PaymentStatusMatched:
			result.Matched++
		case models.PaymentStatusFailed:
			result.Failed++
		case models.PaymentStatusUnprocessed, "":
			// not reached before cancellation; picked up by the next run
		}
		if item.schoolID != "" {
			touched[item.schoolID] = struct{}{}
		}
	}

	if b.reports != nil {
		for school := range touched {
			if err := b.reports.InvalidateSchool(context.WithoutCancel(ctx), school); err != nil {
				b.logger.Warn("failed to invalidate report cache", zap.String("school_id", school), zap.Error(err))
			}
		}
	}

	duration := time.Since(start)
	b.metrics.ObserveBatch(result, duration)
	b.logger.Info("reconciliation batch finished",
		zap.String("school_id", schoolID),
		zap.Int("total", result.Total),
		zap.Int("matched", result.Matched),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", duration),
	)

	if err := ctx.Err(); err != nil {
		return &result, fmt.Errorf("reconciliation batch interrupted: %w", err)
	}
	return &result, nil
}

// ReconcilePayment reconciles a single payment on operator request and
// refreshes the school's cached reports when the ledger moved.
func (b *BatchReconciler) ReconcilePayment(ctx context.Context, schoolID, paymentID string) (*models.ReconcileOutcome, error) {
	outcome, err := b.engine.Reconcile(ctx, schoolID, paymentID)
	if err != nil {
		return nil, err
	}
	if !outcome.Skipped && b.reports != nil {
		if err := b.reports.InvalidateSchool(context.WithoutCancel(ctx), schoolID); err != nil {
			b.logger.Warn("failed to invalidate report cache", zap.String("school_id", schoolID), zap.Error(err))
		}
	}
	return outcome, nil
}

// Handle adapts the coordinator to the background job queue.
func (b *BatchReconciler) Handle(ctx context.Context, job jobs.Job) error {
	if job.SchoolID == "" {
		return fmt.Errorf("reconciliation job %s has no school", job.ID)
	}
	_, err := b.ReconcileAll(ctx, job.SchoolID)
	return err
}

func (b *BatchReconciler) process(ctx context.Context, schoolID, paymentID string) batchItem {
	outcome, err := b.reconcileSafely(ctx, schoolID, paymentID)
	if err != nil {
		if ctx.Err() != nil {
			return batchItem{}
		}
		b.logger.Warn("payment reconciliation failed", zap.String("payment_id", paymentID), zap.Error(err))
		if _, markErr := b.payments.MarkFailed(ctx, paymentID, msgInternalFailure); markErr != nil {
			b.logger.Error("failed to mark payment failed", zap.String("payment_id", paymentID), zap.Error(markErr))
		}
	}

	// The engine may have committed just before cancellation; the tally must
	// still see what was stored.
	payment, err := b.payments.FindByID(context.WithoutCancel(ctx), paymentID)
	if err != nil {
		b.logger.Error("failed to re-read payment", zap.String("payment_id", paymentID), zap.Error(err))
		if outcome != nil && !outcome.Skipped {
			return batchItem{status: outcome.Status, schoolID: schoolID}
		}
		return batchItem{status: models.PaymentStatusFailed}
	}
	return batchItem{status: payment.Status, schoolID: payment.SchoolID}
}

func (b *BatchReconciler) reconcileSafely(ctx context.Context, schoolID, paymentID string) (outcome *models.ReconcileOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = nil, fmt.Errorf("reconcile panicked: %v", r)
		}
	}()
	return b.engine.Reconcile(ctx, schoolID, paymentID)
}
