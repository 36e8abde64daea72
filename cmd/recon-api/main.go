package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fee-recon-api/api/swagger"
	"github.com/noah-isme/fee-recon-api/internal/handler"
	"github.com/noah-isme/fee-recon-api/internal/repository"
	"github.com/noah-isme/fee-recon-api/internal/service"
	"github.com/noah-isme/fee-recon-api/pkg/cache"
	"github.com/noah-isme/fee-recon-api/pkg/config"
	"github.com/noah-isme/fee-recon-api/pkg/database"
	"github.com/noah-isme/fee-recon-api/pkg/jobs"
	"github.com/noah-isme/fee-recon-api/pkg/logger"
)

// @title Fee Reconciliation API
// @version 1.0.0
// @description Matches M-Pesa paybill payments to student fee obligations.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
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

	var redisClient *redis.Client
	if cfg.Reports.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, report cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	location, err := time.LoadLocation(cfg.Reconciliation.StatementTimezone)
	if err != nil {
		logr.Warn("unknown statement timezone, using UTC", zap.String("timezone", cfg.Reconciliation.StatementTimezone), zap.Error(err))
		location = time.UTC
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	studentRepo := repository.NewStudentRepository(db)
	ledgerRepo := repository.NewFeeLedgerRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	reportingRepo := repository.NewReportingRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, cfg.Reports.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.AccessTTL,
		Issuer:            cfg.JWT.Issuer,
	})
	auditSvc := service.NewAuditService(auditRepo, logr)
	reportingSvc := service.NewReportingService(reportingRepo, studentRepo, ledgerRepo, cacheSvc, validate, logr)
	engine := service.NewReconciliationService(db, paymentRepo, studentRepo, ledgerRepo, allocationRepo, metrics, logr)
	batch := service.NewBatchReconciler(engine, paymentRepo, reportingSvc, metrics, service.BatchReconcilerConfig{Workers: cfg.Reconciliation.Workers}, logr)

	queue := jobs.NewQueue("reconcile", batch.Handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Reconciliation.QueueBufferSize,
		MaxRetries: cfg.Reconciliation.QueueMaxRetries,
		RetryDelay: cfg.Reconciliation.QueueRetryDelay,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	ingestSvc := service.NewIngestionService(paymentRepo, queue, batch, validate, metrics, logr, service.IngestionConfig{
		AutoReconcile: cfg.Reconciliation.AutoAfterUpload,
		Location:      location,
	})
	paymentSvc := service.NewPaymentService(paymentRepo, allocationRepo, reportingSvc, validate, logr)
	exportSvc := service.NewExportService(paymentSvc, reportingSvc, logr)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = metrics
	}

	r := newRouter(cfg, logr, routerDeps{
		auth:     authSvc,
		audit:    auditSvc,
		metrics:  metricsSvc,
		payments: handler.NewPaymentHandler(ingestSvc, paymentSvc, batch, exportSvc, cfg.Upload.MaxFileSizeBytes),
		reports:  handler.NewReportHandler(reportingSvc, exportSvc, auditSvc),
		students: handler.NewStudentHandler(service.NewStudentService(studentRepo, validate, logr), reportingSvc),
		health: handler.NewMetricsHandler(metricsSvc, map[string]handler.HealthCheck{
			"postgres": db.PingContext,
			"redis":    cacheRepo.Ping,
		}),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
}
