package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
	redisstorage "github.com/taoyao-code/zkpush-server/internal/storage/redis"
)

// NewRedisClient 未启用时返回 nil, nil
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, using in-memory device store")
		return nil, nil
	}
	client, err := redisstorage.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// NewDeviceStore 有 Redis 时使用 RedisStore，否则进程内存储
func NewDeviceStore(client *redisstorage.Client, cfg config.RedisConfig, logger *zap.Logger) device.Store {
	if client == nil {
		return device.NewMemoryStore()
	}
	logger.Info("redis device store enabled",
		zap.String("key_prefix", cfg.KeyPrefix),
		zap.Duration("device_ttl", cfg.DeviceTTL))
	return device.NewRedisStore(client.Client, cfg.KeyPrefix, cfg.DeviceTTL)
}
