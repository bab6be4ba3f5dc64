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
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/trial-subjects-api/api/swagger"
	"github.com/noah-isme/trial-subjects-api/internal/handler"
	"github.com/noah-isme/trial-subjects-api/internal/middleware"
	"github.com/noah-isme/trial-subjects-api/internal/repository"
	"github.com/noah-isme/trial-subjects-api/internal/service"
	"github.com/noah-isme/trial-subjects-api/pkg/cache"
	"github.com/noah-isme/trial-subjects-api/pkg/config"
	"github.com/noah-isme/trial-subjects-api/pkg/database"
	"github.com/noah-isme/trial-subjects-api/pkg/logger"
)

// @title Trial Subjects API
// @version 1.0.0
// @description Clinical trial subject registry with center-scoped access and audit history
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB, cfg.Database.MigrationTable); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisRequired() {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, scope cache disabled and login limiter kept in memory", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	subjectRepo := repository.NewSubjectRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	centerRepo := repository.NewCenterRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	userRepo := repository.NewUserRepository(db)
	var cacheClient redis.UniversalClient
	if redisClient != nil {
		cacheClient = redisClient
	}
	cacheRepo := repository.NewCacheRepository(cacheClient, "trial-subjects", logr)
	defer cacheRepo.Close() //nolint:errcheck

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.ScopeCache.TTL, logr, cfg.ScopeCache.Enabled && redisClient != nil)
	scopeSvc := service.NewAccessScopeService(membershipRepo, cacheSvc, cfg.ScopeCache.TTL, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, centerRepo, scopeSvc, validate, metricsSvc, logr)
	auditSvc := service.NewAuditLogService(auditRepo, subjectRepo, scopeSvc, service.AuditLogConfig{ExportEnabled: cfg.Audit.ExportEnabled}, logr, nil)
	centerSvc := service.NewCenterService(centerRepo, scopeSvc, logr)
	authSvc := service.NewAuthService(userRepo, scopeSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var loginLimit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		rate, err := limiter.NewRateFromFormatted(cfg.RateLimit.Login)
		if err != nil {
			logr.Sugar().Fatalw("invalid login rate limit", "rate", cfg.RateLimit.Login, "error", err)
		}
		loginLimit = middleware.RateLimit(middleware.NewRateLimitStore(redisClient, "trial-subjects:login", logr), rate)
	}

	router := newRouter(cfg, logr, routeDeps{
		metrics:    metricsSvc,
		loginLimit: loginLimit,
		tokens:     authSvc,
		auth:       handler.NewAuthHandler(authSvc),
		subjects:   handler.NewSubjectHandler(subjectSvc),
		audit:      handler.NewAuditLogHandler(auditSvc),
		centers:    handler.NewCenterHandler(centerSvc),
		ops:        handler.NewMetricsHandler(metricsSvc, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logr.Error("server stopped with error", zap.Error(err))
	}
}
