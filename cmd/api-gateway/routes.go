package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/trial-subjects-api/internal/handler"
	"github.com/noah-isme/trial-subjects-api/internal/middleware"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	"github.com/noah-isme/trial-subjects-api/internal/service"
	"github.com/noah-isme/trial-subjects-api/pkg/config"
	"github.com/noah-isme/trial-subjects-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/trial-subjects-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/trial-subjects-api/pkg/middleware/requestid"
)

type routeDeps struct {
	metrics    *service.MetricsService
	loginLimit gin.HandlerFunc
	tokens     middleware.TokenValidator
	auth       *handler.AuthHandler
	subjects   *handler.SubjectHandler
	audit      *handler.AuditLogHandler
	centers    *handler.CenterHandler
	ops        *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(deps.metrics, "/metrics"))

	r.GET("/health", deps.ops.Health)
	r.GET("/ready", deps.ops.Ready)
	r.GET("/metrics", deps.ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	login := []gin.HandlerFunc{deps.auth.Login}
	if deps.loginLimit != nil {
		login = append([]gin.HandlerFunc{deps.loginLimit}, login...)
	}
	api.POST("/auth/login", login...)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens))

	subjects := secured.Group("/subjects")
	subjects.GET("", deps.subjects.List)
	subjects.POST("", deps.subjects.Create)
	subjects.GET("/:id", deps.subjects.Get)
	subjects.PATCH("/:id", deps.subjects.Update)
	subjects.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), deps.subjects.Delete)

	audit := secured.Group("/audit-logs")
	audit.GET("/:key", deps.audit.List)
	audit.GET("/:key/export", deps.audit.Export)

	centers := secured.Group("/centers")
	centers.GET("", deps.centers.List)
	centers.GET("/:id", deps.centers.Get)

	return r
}
