// Command reconcile runs one reconciliation batch and prints the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/repository"
	"github.com/noah-isme/fee-recon-api/internal/service"
	"github.com/noah-isme/fee-recon-api/pkg/cache"
	"github.com/noah-isme/fee-recon-api/pkg/config"
	"github.com/noah-isme/fee-recon-api/pkg/database"
	"github.com/noah-isme/fee-recon-api/pkg/logger"
)

func main() {
	schoolID := flag.String("school", "", "school ID to reconcile; empty reconciles every school")
	workers := flag.Int("workers", 0, "parallel payments; defaults to RECONCILE_WORKERS")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Reports.CacheEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, cached reports will expire on their own", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	defer cacheRepo.Close() //nolint:errcheck

	paymentRepo := repository.NewPaymentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	ledgerRepo := repository.NewFeeLedgerRepository(db)
	cacheSvc := service.NewCacheService(cacheRepo, nil, cfg.Reports.CacheTTL, logr, cfg.Reports.CacheEnabled)
	reports := service.NewReportingService(repository.NewReportingRepository(db), studentRepo, ledgerRepo, cacheSvc, nil, logr)
	engine := service.NewReconciliationService(db, paymentRepo, studentRepo, ledgerRepo, repository.NewAllocationRepository(db), nil, logr)

	n := cfg.Reconciliation.Workers
	if *workers > 0 {
		n = *workers
	}
	batch := service.NewBatchReconciler(engine, paymentRepo, reports, nil, service.BatchReconcilerConfig{Workers: n}, logr)

	result, err := batch.ReconcileAll(ctx, *schoolID)
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	}
	if err != nil {
		logr.Error("reconciliation failed", zap.Error(err))
		os.Exit(1)
	}
}
