package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/api/middleware"
	"github.com/taoyao-code/zkpush-server/internal/config"
)

// RegisterRoutes 注册业务 API，整组共享一个限流桶
func RegisterRoutes(r gin.IRouter, h *Handler, cfg config.APIConfig, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := r.Group("/")
	g.Use(middleware.CORS(), middleware.RequestLogger(logger), middleware.RateLimit(cfg.RateLimit, logger))

	g.GET("/status", h.Status)
	g.GET("/devices/:sn", h.Device)
	g.POST("/open/", h.OpenDoor)
	g.POST("/cmd", h.Control)
	g.POST("/passage", h.Passage)
	g.POST("/add-card", h.AddCard)
	g.POST("/delete-user", h.DeleteUser)
	g.GET("/check-users", h.CheckUsers)
	g.POST("/check-users", h.CheckUsers)
	g.POST("/query", h.Query)

	if cfg.RateLimit.Enabled {
		logger.Info("api rate limit enabled",
			zap.Int("requests_per_sec", cfg.RateLimit.RequestsPerSec),
			zap.Int("burst", cfg.RateLimit.Burst))
	}
	logger.Info("api routes registered", zap.Int("endpoints", 10))
}
