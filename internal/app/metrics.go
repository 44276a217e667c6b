package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/zkpush-server/internal/metrics"
)

// NewMetrics 初始化注册表与应用指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	return reg, metrics.NewAppMetrics(reg)
}
