// Package push 实现设备侧 ADMS 协议（/iclock/*）：注册、参数下发、数据上传与命令拉取。
// 所有响应均为 text/plain 且 HTTP 200，设备只识别固定字面量。
package push

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/querywait"
	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

const (
	replyOK    = "OK"
	replyError = "Error"

	contentType = "text/plain; charset=utf-8"

	defaultMaxBody = 1 << 20
)

// Handler /iclock 处理器
type Handler struct {
	store    device.Store
	cfg      config.PushConfig
	observer rtlog.Observer
	waits    *querywait.Table
	metrics  *metrics.AppMetrics
	logger   *zap.Logger
	maxBody  int64
}

// Option 可选依赖
type Option func(*Handler)

// WithObserver 门禁事件观察者（日志、指标、推送）
func WithObserver(o rtlog.Observer) Option {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithWaitTable 设备回执与 querydata 行转交给等待中的 API 调用
func WithWaitTable(t *querywait.Table) Option {
	return func(h *Handler) { h.waits = t }
}

func WithMetrics(m *metrics.AppMetrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMaxBodyBytes 限制上传体大小
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(store device.Store, cfg config.PushConfig, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		store:    store,
		cfg:      cfg,
		observer: rtlog.NopObserver(),
		logger:   logger,
		maxBody:  defaultMaxBody,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func reply(c *gin.Context, body string) {
	c.Data(http.StatusOK, contentType, []byte(body))
}

func serialOf(c *gin.Context) string {
	return strings.TrimSpace(c.Query("SN"))
}

func (h *Handler) readBody(c *gin.Context) (string, error) {
	b, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBody))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *Handler) count(endpoint string) {
	if h.metrics != nil {
		h.metrics.PushRequestTotal.WithLabelValues(endpoint).Inc()
	}
}

// touch 刷新心跳，失败只记录日志
func (h *Handler) touch(ctx context.Context, serial string) {
	if serial == "" {
		return
	}
	if err := h.store.Touch(ctx, serial); err != nil {
		h.logger.Warn("touch device failed", zap.String("serial", serial), zap.Error(err))
		return
	}
	if h.metrics != nil {
		h.metrics.HeartbeatTotal.Inc()
	}
}

// Registry POST /iclock/registry
func (h *Handler) Registry(c *gin.Context) {
	h.count("registry")
	serial := serialOf(c)
	if serial == "" {
		h.logger.Warn("registry without serial", zap.String("remote", c.ClientIP()))
		reply(c, replyError)
		return
	}
	body, err := h.readBody(c)
	if err != nil {
		h.logger.Warn("read registry body failed", zap.String("serial", serial), zap.Error(err))
	}
	rec, err := h.store.Register(c.Request.Context(), serial, device.ParseInfo(body))
	if err != nil {
		h.logger.Error("register device failed", zap.String("serial", serial), zap.Error(err))
		reply(c, replyError)
		return
	}
	if h.metrics != nil {
		h.metrics.RegistrationTotal.Inc()
	}
	h.logger.Info("device registered",
		zap.String("serial", serial),
		zap.String("remote", c.ClientIP()),
		zap.String("registry_code", rec.RegistryCode),
		zap.Any("info", rec.Info))
	reply(c, "RegistryCode="+rec.RegistryCode)
}

// CDataGet GET /iclock/cdata 设备初始化拉取参数
func (h *Handler) CDataGet(c *gin.Context) {
	h.count("cdata_get")
	serial := serialOf(c)
	ctx := c.Request.Context()
	rec, ok, err := h.store.Lookup(ctx, serial)
	if err != nil {
		h.logger.Error("lookup device failed", zap.String("serial", serial), zap.Error(err))
	}
	if !ok {
		reply(c, replyOK)
		return
	}
	h.touch(ctx, serial)
	reply(c, configBlock(h.cfg, rec, true))
}

// CDataPost POST /iclock/cdata 设备上传数据（实时事件、门状态等）
func (h *Handler) CDataPost(c *gin.Context) {
	h.count("cdata_post")
	serial := serialOf(c)
	table := strings.ToLower(c.Query("table"))
	ctx := c.Request.Context()
	h.touch(ctx, serial)

	body, err := h.readBody(c)
	if err != nil {
		h.logger.Warn("read upload body failed", zap.String("serial", serial), zap.String("table", table), zap.Error(err))
		reply(c, replyOK)
		return
	}

	switch table {
	case "rtlog":
		h.handleRTLog(ctx, serial, body)
	case "rtstate":
		for _, line := range nonEmptyLines(body) {
			h.logger.Info("door state",
				zap.String("serial", serial),
				zap.Any("state", rtlog.SplitFields(line, "\t")))
		}
	default:
		h.logger.Debug("upload ignored",
			zap.String("serial", serial),
			zap.String("table", table),
			zap.Int("bytes", len(body)))
	}
	reply(c, replyOK)
}

func (h *Handler) handleRTLog(ctx context.Context, serial, body string) {
	events, errs := rtlog.Parse(body)
	for _, err := range errs {
		if h.metrics != nil {
			h.metrics.ParseErrorTotal.WithLabelValues("rtlog").Inc()
		}
		var cardErr *rtlog.CardDecodeError
		if errors.As(err, &cardErr) {
			h.logger.Warn("skip rtlog record", zap.String("serial", serial), zap.String("card", cardErr.Raw), zap.Error(err))
			continue
		}
		h.logger.Warn("skip rtlog record", zap.String("serial", serial), zap.Error(err))
	}
	for _, ev := range events {
		if h.metrics != nil {
			h.metrics.AccessEventTotal.WithLabelValues(string(ev.Outcome)).Inc()
		}
		h.observer.OnAccessEvent(ctx, serial, ev)
	}
}

// Push GET|POST /iclock/push
func (h *Handler) Push(c *gin.Context) {
	h.count("push")
	serial := serialOf(c)
	ctx := c.Request.Context()
	rec, ok, err := h.store.Lookup(ctx, serial)
	if err != nil {
		h.logger.Error("lookup device failed", zap.String("serial", serial), zap.Error(err))
	}
	if !ok {
		reply(c, replyError)
		return
	}
	h.touch(ctx, serial)
	reply(c, configBlock(h.cfg, rec, false))
}

// GetRequest GET /iclock/getrequest 每次最多取出一条命令
func (h *Handler) GetRequest(c *gin.Context) {
	h.count("getrequest")
	serial := serialOf(c)
	ctx := c.Request.Context()
	h.touch(ctx, serial)

	cmd, ok, err := h.store.Dequeue(ctx, serial)
	if err != nil {
		h.logger.Error("dequeue command failed", zap.String("serial", serial), zap.Error(err))
		reply(c, "")
		return
	}
	if !ok {
		if h.metrics != nil {
			h.metrics.CommandFetchTotal.WithLabelValues("empty").Inc()
		}
		reply(c, "")
		return
	}
	if h.metrics != nil {
		h.metrics.CommandFetchTotal.WithLabelValues("hit").Inc()
	}
	h.logger.Info("command delivered", zap.String("serial", serial), zap.String("cmd", cmd))
	reply(c, cmd)
}

// DeviceCmd POST /iclock/devicecmd 设备回报命令执行结果
func (h *Handler) DeviceCmd(c *gin.Context) {
	h.count("devicecmd")
	serial := serialOf(c)
	ctx := c.Request.Context()
	h.touch(ctx, serial)

	body, err := h.readBody(c)
	if err != nil {
		h.logger.Warn("read devicecmd body failed", zap.String("serial", serial), zap.Error(err))
		reply(c, replyOK)
		return
	}
	for _, line := range nonEmptyLines(body) {
		res, ok := parseCommandResult(line)
		if !ok {
			h.logger.Warn("malformed command result", zap.String("serial", serial), zap.String("line", line))
			continue
		}
		h.recordResult(serial, res)
	}
	reply(c, replyOK)
}

func (h *Handler) recordResult(serial string, res querywait.Result) {
	fields := []zap.Field{
		zap.String("serial", serial),
		zap.Int("cmd_id", res.ID),
		zap.Int("return", res.Return),
		zap.String("cmd", res.Cmd),
	}
	if res.OK() {
		h.logger.Info("command succeeded", fields...)
	} else {
		h.logger.Warn("command failed", fields...)
	}
	if h.metrics != nil {
		result := "ok"
		if !res.OK() {
			result = "error"
		}
		h.metrics.CommandResultTotal.WithLabelValues(result).Inc()
	}
	if h.waits != nil {
		h.waits.Resolve(res)
	}
}

// parseCommandResult 解析 ID=..&Return=..&CMD=..
func parseCommandResult(line string) (querywait.Result, bool) {
	fields := rtlog.SplitFields(line, "&")
	id, err := strconv.Atoi(fields["id"])
	if err != nil {
		return querywait.Result{}, false
	}
	ret, err := strconv.Atoi(fields["return"])
	if err != nil {
		return querywait.Result{}, false
	}
	return querywait.Result{ID: id, Return: ret, Cmd: fields["cmd"]}, true
}

// Ping GET /iclock/ping
func (h *Handler) Ping(c *gin.Context) {
	h.count("ping")
	h.touch(c.Request.Context(), serialOf(c))
	reply(c, replyOK)
}

// QueryData POST /iclock/querydata 设备返回 DATA QUERY 的结果行
func (h *Handler) QueryData(c *gin.Context) {
	h.count("querydata")
	serial := serialOf(c)
	table := c.Query("tablename")
	h.touch(c.Request.Context(), serial)

	body, err := h.readBody(c)
	if err != nil {
		h.logger.Warn("read querydata body failed", zap.String("serial", serial), zap.Error(err))
		reply(c, replyOK)
		return
	}
	rows := parseRows(body)
	h.logger.Info("query data received",
		zap.String("serial", serial),
		zap.String("table", table),
		zap.String("count", c.Query("count")),
		zap.Int("rows", len(rows)))

	if raw := c.Query("cmdid"); raw != "" && h.waits != nil {
		if id, err := strconv.Atoi(raw); err == nil {
			h.waits.AppendRows(id, rows)
		}
	}
	reply(c, replyOK)
}

// parseRows 每行形如 "user uid=1\tpin=77\t..."，表名前缀可省略
func parseRows(body string) []map[string]string {
	lines := nonEmptyLines(body)
	rows := make([]map[string]string, 0, len(lines))
	for _, line := range lines {
		if i := strings.IndexByte(line, ' '); i > 0 && !strings.Contains(line[:i], "=") {
			line = line[i+1:]
		}
		rows = append(rows, rtlog.SplitFields(line, "\t"))
	}
	return rows
}

func nonEmptyLines(body string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// OnlineCount 在线设备数，供指标刷新
func OnlineCount(ctx context.Context, store device.Store, timeout time.Duration, now time.Time) (int, error) {
	list, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range list {
		if r.Online(now, timeout) {
			n++
		}
	}
	return n, nil
}
