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
	"go.uber.org/zap"

	_ "github.com/rastion/rastion-datasets/api/swagger"
	"github.com/rastion/rastion-datasets/internal/catalog"
	"github.com/rastion/rastion-datasets/internal/handler"
	"github.com/rastion/rastion-datasets/internal/middleware"
	"github.com/rastion/rastion-datasets/internal/repository"
	"github.com/rastion/rastion-datasets/internal/service"
	"github.com/rastion/rastion-datasets/pkg/cache"
	"github.com/rastion/rastion-datasets/pkg/config"
	"github.com/rastion/rastion-datasets/pkg/database"
	"github.com/rastion/rastion-datasets/pkg/logger"
	corsmiddleware "github.com/rastion/rastion-datasets/pkg/middleware/cors"
	reqidmiddleware "github.com/rastion/rastion-datasets/pkg/middleware/requestid"
	"github.com/rastion/rastion-datasets/pkg/scoring"
	"github.com/rastion/rastion-datasets/pkg/storage"
)

// @title Rastion Datasets API
// @version 1.0.0
// @description Dataset ingestion, access ledger and compatibility scoring for Rastion problem repositories
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cache and rate limiting disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	datasetRepo := repository.NewDatasetRepository(db)
	accessRepo := repository.NewAccessLogRepository(db)
	compatRepo := repository.NewCompatibilityRepository(db)
	problemRepo := repository.NewProblemRepositoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "rastion", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Catalog.CacheTTL, logr, redisClient != nil)
	repoCatalog := catalog.New(catalogSources(cfg, logr), cacheSvc, problemRepo, cfg.Catalog.CacheTTL, logr)

	scorer := scoring.NewScorer(scoring.Weights{
		ProblemType: cfg.Scoring.WeightProblemType,
		Format:      cfg.Scoring.WeightFormat,
		Parameter:   cfg.Scoring.WeightParameter,
	})
	compatSvc := service.NewCompatibilityService(datasetRepo, compatRepo, repoCatalog, scorer, metrics, logr, service.CompatibilityConfig{
		Workers:     cfg.Scoring.Workers,
		Retries:     cfg.Scoring.Retries,
		RetryDelay:  2 * time.Second,
		Concurrency: cfg.Scoring.RecomputeConcurrency,
	})
	limiter := cache.NewFixedWindowLimiter(redisClient, "ledger", cfg.Ledger.RateLimit, cfg.Ledger.RateWindow)
	accessSvc := service.NewAccessService(accessRepo, limiter, metrics, logr)
	datasetSvc := service.NewDatasetService(datasetRepo, blobs, accessSvc, compatSvc, validate, metrics, logr, service.DatasetServiceConfig{
		MaxFileSize: cfg.Datasets.MaxFileSizeBytes,
		PrefixBytes: cfg.Datasets.SniffBytes,
	})
	healthSvc := service.NewHealthCheckService(datasetRepo, blobs, metrics, logr, cfg.Scoring.RecomputeConcurrency)
	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	compatSvc.Start(workerCtx)
	defer compatSvc.Stop()

	scheduler := service.NewSchedulerService(logr, 30*time.Minute)
	if err := registerTasks(scheduler, cfg, compatSvc, healthSvc, repoCatalog); err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		scheduler.Stop(stopCtx)
	}()

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Register(r, cfg.APIPrefix, handler.Routes{
		Datasets:      handler.NewDatasetHandler(datasetSvc, accessSvc, cfg.APIPrefix, cfg.Datasets.MaxFileSizeBytes),
		Compatibility: handler.NewCompatibilityHandler(compatSvc),
		Metrics:       handler.NewMetricsHandler(metrics, map[string]handler.Pinger{"postgres": datasetRepo, "redis": cacheRepo}),
		Auth:          authSvc,
		Logger:        logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func catalogSources(cfg *config.Config, logr *zap.Logger) []catalog.Source {
	var sources []catalog.Source
	if cfg.Catalog.File != "" {
		sources = append(sources, catalog.NewFileSource(cfg.Catalog.File))
	}
	if cfg.Catalog.GiteaURL != "" {
		sources = append(sources, catalog.NewGiteaSource(cfg.Catalog.GiteaURL, cfg.Catalog.GiteaToken, cfg.Catalog.GiteaQuery, nil, logr))
	}
	if len(sources) == 0 {
		logr.Warn("no repository catalog source configured, scoring uses the mirror table only")
	}
	return sources
}

func registerTasks(scheduler *service.SchedulerService, cfg *config.Config, compat *service.CompatibilityService, health *service.HealthCheckService, repoCatalog *catalog.Catalog) error {
	if cfg.Catalog.CacheTTL > 0 {
		if err := scheduler.Register("catalog.refresh", fmt.Sprintf("@every %s", cfg.Catalog.CacheTTL), func(ctx context.Context) error {
			_, err := repoCatalog.Refresh(ctx)
			return err
		}); err != nil {
			return err
		}
	}
	if err := scheduler.Register("compatibility.recompute", cfg.Scoring.RecomputeSchedule, func(ctx context.Context) error {
		_, err := compat.RecomputeAll(ctx)
		return err
	}); err != nil {
		return err
	}
	return scheduler.Register("datasets.healthcheck", cfg.HealthCheck.Schedule, func(ctx context.Context) error {
		_, err := health.Run(ctx)
		return err
	})
}
