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
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/portal-reports/api/swagger"
	"github.com/noah-isme/portal-reports/internal/handler"
	"github.com/noah-isme/portal-reports/internal/middleware"
	"github.com/noah-isme/portal-reports/internal/models"
	"github.com/noah-isme/portal-reports/internal/repository"
	"github.com/noah-isme/portal-reports/internal/service"
	"github.com/noah-isme/portal-reports/pkg/cache"
	"github.com/noah-isme/portal-reports/pkg/config"
	"github.com/noah-isme/portal-reports/pkg/database"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/logger"
	corsmiddleware "github.com/noah-isme/portal-reports/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/portal-reports/pkg/middleware/requestid"
	"github.com/noah-isme/portal-reports/pkg/notify"
	"github.com/noah-isme/portal-reports/pkg/response"
	"github.com/noah-isme/portal-reports/pkg/storage"
)

// @title Portal Reports API
// @version 1.0.0
// @description Scheduled and ad-hoc reporting for the submission portal
// @BasePath /api/v1
// @schemes http https

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
		logr.Fatal("failed to connect to portal database", zap.Error(err))
	}
	defer db.Close()

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	store, err := buildScheduleStore(ctx, cfg, db, checks)
	if err != nil {
		logr.Fatal("failed to initialise schedule store", zap.Error(err), zap.String("store", cfg.Scheduler.Store))
	}

	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare report storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	loc := cfg.Scheduler.Location()
	metrics := service.NewMetricsService()
	registry := service.NewScheduleRegistry(store, logr)
	composer := service.NewNotificationComposer(loc)
	delivery := service.NewDeliveryService(buildSender(cfg, logr), composer, cfg.Scheduler.DeliveryConcurrency, metrics, logr)
	artifacts := service.NewArtifactStore(files, signer, service.ArtifactStoreConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.ResultTTL,
	}, logr)
	pipeline := service.NewReportPipeline(
		service.NewReportAggregator(repository.NewPortalRepository(db), loc, logr),
		service.NewReportRenderer(nil, nil, logr),
		artifacts,
		composer,
		delivery,
		registry,
		metrics,
		service.PipelineConfig{RetryDelay: cfg.Scheduler.RetryDelay},
		logr,
	)
	scheduler := service.NewScheduler(registry, pipeline, delivery, artifacts, metrics, service.SchedulerConfig{
		PollInterval:    cfg.Scheduler.PollInterval,
		CleanupInterval: cfg.Reports.CleanupInterval,
		ReminderLead:    cfg.Scheduler.ReminderLead,
		RetryDelay:      cfg.Scheduler.RetryDelay,
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
		DrainTimeout:    cfg.Scheduler.DrainTimeout,
		Location:        loc,
	}, logr)

	validate := validator.New()
	authService := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	scheduleHandler := handler.NewScheduleHandler(service.NewScheduleService(registry, validate, logr))
	reportHandler := handler.NewReportHandler(service.NewReportService(pipeline, artifacts, validate, logr))
	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/export/:token", reportHandler.Download)

	secured := api.Group("", middleware.JWT(authService))
	secured.POST("/reports/generate", middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty), reportHandler.Generate)

	schedules := secured.Group("/schedules", middleware.RequireRoles(models.RoleAdmin))
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.Get)
	schedules.POST("/:id/pause", scheduleHandler.Pause)
	schedules.POST("/:id/resume", scheduleHandler.Resume)
	schedules.DELETE("/:id", scheduleHandler.Delete)

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.ErrNotFound)
	})

	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logr.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Scheduler.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func buildScheduleStore(ctx context.Context, cfg *config.Config, db *sqlx.DB, checks map[string]handler.ReadinessCheck) (service.ScheduleStore, error) {
	switch cfg.Scheduler.Store {
	case config.StorePostgres:
		repo := repository.NewScheduleRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return repository.NewRedisScheduleStore(client, cache.Key(cfg.Redis.KeyPrefix, "report_schedules")), nil
	case config.StoreMemory, "":
		return repository.NewMemoryScheduleStore(), nil
	default:
		return nil, fmt.Errorf("unknown schedule store %q", cfg.Scheduler.Store)
	}
}

func buildSender(cfg *config.Config, logr *zap.Logger) notify.Sender {
	breaker := func(name string, next notify.Sender) notify.Sender {
		return notify.NewBreakerSender(next, notify.BreakerSettings{
			Name:             name,
			FailureThreshold: cfg.Notify.BreakerFailures,
			MaxRequests:      cfg.Notify.BreakerMaxRequests,
			Interval:         cfg.Notify.BreakerInterval,
			Timeout:          cfg.Notify.BreakerTimeout,
		}, logr)
	}

	var fallback notify.Sender = notify.NewLogSender(logr)
	if cfg.SMTP.Host != "" {
		fallback = breaker("smtp", notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From))
	}
	router := &notify.RoutingSender{Default: fallback}
	if cfg.Slack.Token != "" {
		router.Routes = append(router.Routes, notify.Route{Prefix: notify.SlackPrefix, Sender: breaker("slack", notify.NewSlackSender(cfg.Slack.Token))})
	}
	return router
}
