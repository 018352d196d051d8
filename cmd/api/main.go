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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uni-enroll-api/api/swagger"
	"github.com/noah-isme/uni-enroll-api/internal/handler"
	internalmiddleware "github.com/noah-isme/uni-enroll-api/internal/middleware"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	"github.com/noah-isme/uni-enroll-api/internal/repository"
	"github.com/noah-isme/uni-enroll-api/internal/service"
	"github.com/noah-isme/uni-enroll-api/pkg/cache"
	"github.com/noah-isme/uni-enroll-api/pkg/config"
	"github.com/noah-isme/uni-enroll-api/pkg/database"
	"github.com/noah-isme/uni-enroll-api/pkg/jobs"
	"github.com/noah-isme/uni-enroll-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-enroll-api/pkg/middleware/cors"
	"github.com/noah-isme/uni-enroll-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/uni-enroll-api/pkg/middleware/requestid"
	"github.com/noah-isme/uni-enroll-api/pkg/tracing"
)

// @title University Enrollment API
// @version 1.0.0
// @description Course enrollment, fee payment and student role promotion.
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

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logr.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	txManager := database.NewTxManager(db)

	personRepo := repository.NewPersonRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	examRepo := repository.NewExamRepository(db)
	audits := service.NewAuditDispatcher(auditRepo, jobs.QueueConfig{Workers: 2, BufferSize: 256, MaxRetries: 3, Logger: logr})
	audits.Start(ctx)
	cacheRepo := repository.NewCacheRepository(redisClient, "uni:")

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Enrollment.CatalogCacheTTL, logr, cfg.Enrollment.CacheEnabled && redisClient != nil)
	authSvc := service.NewAuthService(personRepo, audits, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Enrollment.CatalogCacheTTL, logr)
	personSvc := service.NewPersonService(personRepo, audits, validate, logr)
	examSvc := service.NewExamService(examRepo, courseRepo, studentRepo, audits, validate, logr)
	gate := service.NewRolePromotionGate(personRepo, metricsSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, personRepo, audits, txManager, metricsSvc, validate, logr)
	paymentSvc := service.NewPaymentService(enrollmentRepo, feeRepo, studentRepo, courseRepo, gate, audits, txManager, metricsSvc,
		service.PaymentConfig{FeeDueWindow: cfg.Enrollment.FeeDueWindow}, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	personHandler := handler.NewPersonHandler(personSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	examHandler := handler.NewExamHandler(examSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc,
		handler.ReadinessCheck{Name: "postgres", Pinger: db},
		handler.ReadinessCheck{Name: "redis", Pinger: cacheRepo, Optional: true},
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := internalmiddleware.JWT(authSvc)
	paymentLimiter := ratelimit.New(cfg.RateLimit.PaymentPerSecond, cfg.RateLimit.PaymentBurst, cfg.RateLimit.IdleTTL)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", requireAuth, authHandler.Me)

	courses := api.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)

	enrollments := api.Group("/enrollments", requireAuth)
	enrollments.POST("", internalmiddleware.RequireRoles(models.RoleUser), enrollmentHandler.Request)
	enrollments.GET("/me", enrollmentHandler.Mine)
	enrollments.GET("/:id", enrollmentHandler.Get)
	enrollments.POST("/:id/drop", enrollmentHandler.Drop)
	enrollments.POST("/:id/payment", paymentLimiter.Middleware(internalmiddleware.ActorRateKey), paymentHandler.Complete)
	enrollments.GET("/:id/receipt", paymentHandler.Receipt)

	professor := api.Group("/professor", requireAuth, internalmiddleware.RequireRoles(models.RoleProfessor))
	professor.GET("/courses/:id/exams", examHandler.ListByCourse)
	professor.POST("/courses/:id/exams", examHandler.Create)
	professor.PUT("/exams/:id", examHandler.Update)
	professor.DELETE("/exams/:id", examHandler.Delete)
	professor.GET("/exams/:id/submissions", examHandler.Submissions)

	exams := api.Group("/exams", requireAuth, internalmiddleware.RequireRoles(models.RoleStudent))
	exams.POST("/:id/submissions", examHandler.Submit)

	admin := api.Group("/admin", requireAuth, internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.GET("/enrollments", enrollmentHandler.List)
	admin.GET("/enrollments/export", enrollmentHandler.Export)
	admin.DELETE("/enrollments/:id", enrollmentHandler.Delete)
	admin.PUT("/persons/:id/role", personHandler.UpdateRole)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	audits.Stop()
	logr.Info("server stopped")
}
