package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/fee-recon-api/internal/handler"
	"github.com/noah-isme/fee-recon-api/internal/middleware"
	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/internal/service"
	"github.com/noah-isme/fee-recon-api/pkg/config"
	"github.com/noah-isme/fee-recon-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fee-recon-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fee-recon-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth     *service.AuthService
	audit    *service.AuditService
	metrics  *service.MetricsService
	payments *handler.PaymentHandler
	reports  *handler.ReportHandler
	students *handler.StudentHandler
	health   *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	if deps.metrics != nil {
		r.GET("/metrics", deps.health.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	operators := middleware.RequireRoles(models.RoleAdmin, models.RoleBursar)
	readers := middleware.RequireRoles(models.RoleAdmin, models.RoleBursar, models.RoleViewer)
	admins := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.auth), middleware.WithResponseMeta())

	payments := api.Group("/payments")
	payments.POST("/upload", operators, middleware.Audit(deps.audit, models.AuditActionPaymentUpload, "payment"), deps.payments.Upload)
	payments.POST("/ingest", operators, middleware.Audit(deps.audit, models.AuditActionPaymentUpload, "payment"), deps.payments.Ingest)
	payments.GET("", readers, deps.payments.List)
	payments.GET("/unmatched", readers, deps.payments.Unmatched)
	payments.GET("/unmatched/export", readers, deps.payments.ExportUnmatched)
	payments.GET("/:id", readers, deps.payments.Get)
	payments.POST("/reconcile", admins, middleware.Audit(deps.audit, models.AuditActionReconcileBatch, "payment"), deps.payments.ReconcileAll)
	payments.POST("/:id/reconcile", admins, middleware.Audit(deps.audit, models.AuditActionReconcilePayment, "payment"), deps.payments.Reconcile)
	payments.POST("/:id/reset", admins, middleware.Audit(deps.audit, models.AuditActionPaymentReset, "payment"), deps.payments.Reset)

	students := api.Group("/students", readers)
	students.GET("", deps.students.List)
	students.GET("/:id", deps.students.Get)
	students.GET("/:id/fees", deps.students.Fees)

	reports := api.Group("/reports", readers)
	reports.GET("/students", deps.reports.StudentBalances)
	reports.GET("/students/export", deps.reports.ExportStudentBalances)
	reports.GET("/classes", deps.reports.ClassBalances)
	reports.GET("/school", deps.reports.SchoolBalance)
	reports.GET("/reconciliation", deps.reports.Reconciliation)
	reports.GET("/trends", deps.reports.Trends)
	reports.GET("/audit-trail", admins, deps.reports.AuditTrail)

	return r
}
