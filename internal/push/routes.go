package push

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes 注册设备侧 /iclock 路由（不做限流与鉴权）
func RegisterRoutes(r gin.IRouter, h *Handler, logger *zap.Logger) {
	g := r.Group("/iclock")
	g.POST("/registry", h.Registry)
	g.GET("/cdata", h.CDataGet)
	g.POST("/cdata", h.CDataPost)
	g.GET("/push", h.Push)
	g.POST("/push", h.Push)
	g.GET("/getrequest", h.GetRequest)
	g.POST("/devicecmd", h.DeviceCmd)
	g.GET("/ping", h.Ping)
	g.POST("/querydata", h.QueryData)

	if logger != nil {
		logger.Info("iclock routes registered", zap.Int("endpoints", 9))
	}
}
