package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/push"
)

// OnlineMonitor 定期刷新在线设备数指标
type OnlineMonitor struct {
	store    device.Store
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
	timeout  time.Duration
	interval time.Duration
}

func NewOnlineMonitor(store device.Store, m *metrics.AppMetrics, timeout time.Duration, logger *zap.Logger) *OnlineMonitor {
	interval := timeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	return &OnlineMonitor{store: store, metrics: m, logger: logger, timeout: timeout, interval: interval}
}

// Start 阻塞直到 ctx 取消
func (m *OnlineMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("online monitor stopped")
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *OnlineMonitor) refresh(ctx context.Context) {
	n, err := push.OnlineCount(ctx, m.store, m.timeout, time.Now())
	if err != nil {
		m.logger.Warn("count online devices failed", zap.Error(err))
		return
	}
	m.metrics.OnlineGauge.Set(float64(n))
}
