package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	PushRequestTotal   *prometheus.CounterVec // labels: endpoint
	RegistrationTotal  prometheus.Counter     // 设备注册次数
	CommandQueuedTotal *prometheus.CounterVec // labels: kind
	CommandFetchTotal  *prometheus.CounterVec // labels: result=hit|empty
	CommandResultTotal *prometheus.CounterVec // labels: result=ok|error
	AccessEventTotal   *prometheus.CounterVec // labels: outcome
	ParseErrorTotal    *prometheus.CounterVec // labels: table
	QueryWaitTotal     *prometheus.CounterVec // labels: result=resolved|timeout|cancelled
	NotifyTotal        *prometheus.CounterVec // labels: sink, result
	OnlineGauge        prometheus.Gauge       // 当前在线设备数
	HeartbeatTotal     prometheus.Counter     // 心跳计数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		PushRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "push_request_total",
			Help: "Device push protocol requests by endpoint.",
		}, []string{"endpoint"}),
		RegistrationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "push_registration_total",
			Help: "Total device registrations.",
		}),
		CommandQueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "command_queued_total",
			Help: "Commands appended to device queues by kind.",
		}, []string{"kind"}),
		CommandFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "command_fetch_total",
			Help: "getrequest polls by result.",
		}, []string{"result"}),
		CommandResultTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "command_result_total",
			Help: "Command results reported by devices.",
		}, []string{"result"}),
		AccessEventTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_event_total",
			Help: "Parsed real-time access events by outcome.",
		}, []string{"outcome"}),
		ParseErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_parse_error_total",
			Help: "Uploaded records skipped because they could not be parsed.",
		}, []string{"table"}),
		QueryWaitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "query_wait_total",
			Help: "API waits for device command results.",
		}, []string{"result"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notify_total",
			Help: "Access event notifications by sink and result.",
		}, []string{"sink", "result"}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_online_count",
			Help: "Current number of online devices.",
		}),
		HeartbeatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_heartbeat_total",
			Help: "Total heartbeats observed.",
		}),
	}
	reg.MustRegister(
		m.PushRequestTotal, m.RegistrationTotal, m.CommandQueuedTotal, m.CommandFetchTotal,
		m.CommandResultTotal, m.AccessEventTotal, m.ParseErrorTotal, m.QueryWaitTotal,
		m.NotifyTotal, m.OnlineGauge, m.HeartbeatTotal,
	)
	return m
}

// CommandsQueued 实现 command.Recorder
func (m *AppMetrics) CommandsQueued(kind string, n int) {
	if m == nil {
		return
	}
	m.CommandQueuedTotal.WithLabelValues(kind).Add(float64(n))
}

// NotifyResult 实现 notify.Recorder
func (m *AppMetrics) NotifyResult(sink, result string) {
	if m == nil {
		return
	}
	m.NotifyTotal.WithLabelValues(sink, result).Inc()
}
