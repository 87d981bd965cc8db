package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dojo-admin-api/api/swagger"
	"github.com/noah-isme/dojo-admin-api/internal/handler"
	"github.com/noah-isme/dojo-admin-api/internal/middleware"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	"github.com/noah-isme/dojo-admin-api/internal/repository"
	"github.com/noah-isme/dojo-admin-api/internal/service"
	"github.com/noah-isme/dojo-admin-api/pkg/cache"
	"github.com/noah-isme/dojo-admin-api/pkg/config"
	"github.com/noah-isme/dojo-admin-api/pkg/database"
	"github.com/noah-isme/dojo-admin-api/pkg/jobs"
	"github.com/noah-isme/dojo-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dojo-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dojo-admin-api/pkg/middleware/requestid"
)

// @title Dojo Admin API
// @version 1.0.0
// @description Aikido school administration: monthly instructor and federation payroll with bank reconciliation.
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, logr); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	redisClient := connectRedis(ctx, cfg.Redis, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Payroll.SummaryCacheTTL, logr)

	userRepo := repository.NewUserRepository(db)
	payrollRepo := repository.NewPayrollRepository(db)
	reconciliationRepo := repository.NewReconciliationRepository(db)
	bankRepo := repository.NewBankTransactionRepository(db)
	collectedRepo := repository.NewCollectedPaymentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	created, err := authSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.FullName)
	if err != nil {
		logr.Fatal("failed to seed administrator", zap.Error(err))
	}
	if created {
		logr.Info("administrator account created", zap.String("email", cfg.Admin.Email))
	}

	payrollSvc := service.NewPayrollService(payrollRepo, cacheSvc, metrics, logr)
	reportSvc := service.NewPayrollReportService(payrollRepo, cacheSvc, cfg.Payroll.SummaryCacheTTL, cfg.Payroll.StatementTitle, logr)
	reconciliationSvc := service.NewReconciliationService(reconciliationRepo, cacheSvc, validate, metrics, logr)
	bankSvc := service.NewBankTransactionService(bankRepo, validate, logr)
	collectionSvc := service.NewCollectionService(collectedRepo, bankRepo, userRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, validate, logr)

	jobSvc := service.NewPayrollJobService(payrollSvc, jobs.QueueConfig{
		Workers:    cfg.Payroll.Workers,
		MaxRetries: cfg.Payroll.MaxRetries,
		RetryDelay: cfg.Payroll.RetryDelay,
		Logger:     logr,
	})
	jobSvc.Start(ctx)
	defer jobSvc.Stop()

	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeHandlers{
		auth:            handler.NewAuthHandler(authSvc),
		payroll:         handler.NewPayrollHandler(payrollSvc, jobSvc, reportSvc),
		reconciliation:  handler.NewReconciliationHandler(reconciliationSvc),
		bankTransaction: handler.NewBankTransactionHandler(bankSvc),
		ledger:          handler.NewLedgerHandler(reconciliationSvc),
		collection:      handler.NewCollectionHandler(collectionSvc),
		session:         handler.NewSessionHandler(sessionSvc),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

// connectRedis returns nil when caching is disabled or Redis is unreachable; the API then reads straight from Postgres.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logr *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg)
	if err != nil {
		logr.Warn("redis unavailable, payroll summary cache disabled", zap.Error(err))
		return nil
	}
	return client
}

type routeHandlers struct {
	auth            *handler.AuthHandler
	payroll         *handler.PayrollHandler
	reconciliation  *handler.ReconciliationHandler
	bankTransaction *handler.BankTransactionHandler
	ledger          *handler.LedgerHandler
	collection      *handler.CollectionHandler
	session         *handler.SessionHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers, tokens middleware.TokenValidator) {
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens), middleware.WithResponseMeta())
	secured.GET("/auth/me", h.auth.Me)

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))

	payroll := admin.Group("/payroll")
	payroll.POST("/runs/:month", h.payroll.Run)
	payroll.POST("/runs/:month/recalculate", h.payroll.Recalculate)
	payroll.GET("/jobs/:id", h.payroll.JobStatus)
	payroll.GET("/:month", h.payroll.Summary)
	payroll.GET("/:month/export", h.payroll.Export)

	admin.GET("/instructor-payments/:id/status", h.reconciliation.InstructorPaymentStatus)
	admin.POST("/instructor-payments/:id/allocations", h.reconciliation.AllocateInstructorPayment)
	admin.DELETE("/instructor-allocations/:id", h.reconciliation.DeleteInstructorAllocation)
	admin.POST("/federation-payments/:id/link", h.reconciliation.LinkFederationPayment)
	admin.DELETE("/federation-payments/:id/link", h.reconciliation.UnlinkFederationPayment)

	admin.POST("/bank-transactions", h.bankTransaction.Create)
	admin.GET("/bank-transactions", h.bankTransaction.List)
	admin.GET("/bank-transactions/:id", h.bankTransaction.Get)
	admin.POST("/bank-transactions/:id/ignore", h.bankTransaction.Ignore)
	admin.DELETE("/bank-transactions/:id/ignore", h.bankTransaction.Restore)
	admin.POST("/bank-transactions/:id/ledger-allocations", h.ledger.Create)
	admin.GET("/bank-transactions/:id/ledger-allocations", h.ledger.List)
	admin.DELETE("/ledger-allocations/:id", h.ledger.Delete)

	admin.POST("/collected-payments", h.collection.Create)
	admin.GET("/collected-payments", h.collection.List)
	admin.DELETE("/collected-payments/:id", h.collection.Delete)

	admin.POST("/sessions/assignments", h.session.Assign)
	admin.POST("/sessions/:id/cancel", h.session.Cancel)
	admin.DELETE("/sessions/:id/cancel", h.session.Reinstate)
}
