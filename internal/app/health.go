package app

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/health"
	redisstorage "github.com/taoyao-code/zkpush-server/internal/storage/redis"
)

// NewHealthAggregator 设备存储检查始终存在，Redis 检查仅在启用时加入
func NewHealthAggregator(store device.Store, onlineTimeout time.Duration, redisClient *redisstorage.Client) *health.Aggregator {
	agg := health.NewAggregator(health.NewStoreChecker(store, onlineTimeout))
	if redisClient != nil {
		agg.AddChecker(health.NewRedisChecker(redisClient))
	}
	return agg
}

// RegisterHealthRoutes 注册 /health 路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
