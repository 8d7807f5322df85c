package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-kbqa/internal/bootstrap"
	"gopherai-kbqa/internal/pkg/jwtutil"
	"gopherai-kbqa/internal/transport/http/handler"
	"gopherai-kbqa/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID(), app.Metrics.Middleware())

	checks := make(map[string]handler.HealthCheck)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(handler.HealthInfo{
		App:       app.Config.App.Name,
		Env:       app.Config.App.Env,
		Version:   app.Config.App.Version,
		StartedAt: app.StartedAt,
	}, app.Index, checks)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", app.Metrics.Handler())

	queryHandler := handler.NewQueryHandler(app.Pipeline, app.Logger)
	statsHandler := handler.NewStatsHandler(app.Index, app.Config.Embedding.Model, app.Config.Embedding.Dimension)
	adminHandler := handler.NewAdminHandler(app, app.Logger)

	v1 := router.Group("/api/v1")
	v1.POST("/query", queryHandler.Query)
	v1.POST("/query/stream", queryHandler.Stream)
	v1.GET("/stats", statsHandler.Stats)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret), middleware.RequireRole(jwtutil.RoleAdmin))
	adminGroup.POST("/index/reload", adminHandler.ReloadIndex)

	return router
}
