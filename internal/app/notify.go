package app

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/notify"
	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

// LoadEventCodes 默认描述表叠加配置文件；文件读取失败只告警
func LoadEventCodes(path string, logger *zap.Logger) *rtlog.EventCodes {
	codes := rtlog.DefaultEventCodes()
	if path == "" {
		return codes
	}
	extra, err := rtlog.LoadEventCodes(path)
	if err != nil {
		logger.Warn("load event codes failed, using defaults", zap.String("path", path), zap.Error(err))
		return codes
	}
	codes.Merge(extra)
	logger.Info("event codes loaded", zap.String("path", path), zap.Int("entries", len(extra.Map)))
	return codes
}

// NewNotifySinks 按配置创建 MQTT 与 Webhook 下游；MQTT 连接失败时跳过该下游
func NewNotifySinks(cfg config.NotifyConfig, logger *zap.Logger) (sinks []notify.Sink, closeFn func()) {
	closeFn = func() {}
	if cfg.MQTT.Enabled {
		sink, err := notify.DialMQTT(cfg.MQTT, logger)
		if err != nil {
			logger.Error("mqtt sink disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			sinks = append(sinks, sink)
			closeFn = sink.Close
			logger.Info("mqtt sink enabled", zap.String("broker", cfg.MQTT.Broker), zap.String("topic_prefix", cfg.MQTT.TopicPrefix))
		}
	}
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		w := notify.NewWebhookSink(&http.Client{Timeout: cfg.Webhook.Timeout}, cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Secret)
		if cfg.Webhook.Retries >= 0 {
			w.Retries = cfg.Webhook.Retries
		}
		sinks = append(sinks, w)
		logger.Info("webhook sink enabled", zap.String("url", cfg.Webhook.URL))
	}
	return sinks, closeFn
}

// NewObservers 日志观察者始终存在；有下游时再挂异步分发器
func NewObservers(cfg config.NotifyConfig, codes *rtlog.EventCodes, sinks []notify.Sink, appm *metrics.AppMetrics, logger *zap.Logger) (rtlog.Observer, *notify.Dispatcher) {
	observers := rtlog.Observers{notify.NewLogObserver(logger, codes)}
	if len(sinks) == 0 {
		return observers, nil
	}
	d := notify.NewDispatcher(cfg.BufferSize, logger, sinks,
		notify.WithWorkers(cfg.Workers),
		notify.WithRecorder(appm),
		notify.WithEventCodes(codes))
	return append(observers, d), d
}
