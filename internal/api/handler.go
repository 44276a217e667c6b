// Package api 业务侧 JSON 接口：开门、常开、发卡、删人、查询设备数据。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/command"
	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/querywait"
	"github.com/taoyao-code/zkpush-server/internal/rtlog"
	"github.com/taoyao-code/zkpush-server/internal/timecodec"
)

const errDeviceNotFound = "device not found"

// Handler 业务 API 处理器
type Handler struct {
	store         device.Store
	svc           *command.Service
	waits         *querywait.Table
	cfg           config.APIConfig
	onlineTimeout time.Duration
	metrics       *metrics.AppMetrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewHandler waits 为 nil 时 wait 参数被忽略
func NewHandler(
	store device.Store,
	svc *command.Service,
	waits *querywait.Table,
	cfg config.APIConfig,
	onlineTimeout time.Duration,
	m *metrics.AppMetrics,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:         store,
		svc:           svc,
		waits:         waits,
		cfg:           cfg,
		onlineTimeout: onlineTimeout,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// DeviceStatus /status 与 /devices/:sn 的设备视图
type DeviceStatus struct {
	device.Record
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
}

// QueuedResponse 命令入队成功的响应
type QueuedResponse struct {
	Status   string         `json:"status"`
	Device   string         `json:"device"`
	IDs      []int          `json:"command_ids"`
	Commands []string       `json:"commands"`
	Pin      string         `json:"pin,omitempty"`
	Result   []CommandReply `json:"result,omitempty"`
}

// CommandReply 等待模式下每条命令的设备回执
type CommandReply struct {
	ID     int                 `json:"id"`
	Return *int                `json:"return,omitempty"`
	Rows   []map[string]string `json:"rows,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// param 依次读取 query 与表单参数
func param(c *gin.Context, key string) string {
	if v, ok := c.GetQuery(key); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(c.PostForm(key))
}

func intParam(c *gin.Context, key string, def int) (int, error) {
	raw := param(c, key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

func boolParam(c *gin.Context, key string) (bool, error) {
	raw := param(c, key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return v, nil
}

func (h *Handler) serial(c *gin.Context) string {
	if sn := param(c, "sn"); sn != "" {
		return sn
	}
	return h.cfg.DefaultSerial
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func isShapeError(err error) bool {
	for _, target := range []error{
		command.ErrInvalidDoor,
		command.ErrInvalidSeconds,
		command.ErrMissingCard,
		command.ErrEmptyCommand,
		command.ErrNoQueryTable,
		timecodec.ErrParse,
		rtlog.ErrCardDecode,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fail 统一错误映射：未知设备 200，参数问题 400，其余 500
func (h *Handler) fail(c *gin.Context, serial string, err error) {
	switch {
	case errors.Is(err, device.ErrUnknownDevice):
		c.JSON(http.StatusOK, gin.H{"error": errDeviceNotFound, "device": serial})
	case isShapeError(err):
		badRequest(c, err)
	case errors.Is(err, querywait.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "command id in use, retry later", "device": serial})
	default:
		h.logger.Error("api command failed", zap.String("serial", serial), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queued(serial string, cmds []command.Command) QueuedResponse {
	resp := QueuedResponse{
		Status:   "queued",
		Device:   serial,
		IDs:      make([]int, len(cmds)),
		Commands: make([]string, len(cmds)),
	}
	for i, cmd := range cmds {
		resp.IDs[i] = cmd.ID
		resp.Commands[i] = cmd.String()
	}
	return resp
}

// Status 服务状态与设备列表
// @Summary 服务状态
// @Tags API
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /status [get]
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.store.List(ctx)
	if err != nil {
		h.fail(c, "", err)
		return
	}
	devices := make([]DeviceStatus, 0, len(list))
	for _, rec := range list {
		devices = append(devices, h.deviceStatus(ctx, rec))
	}
	c.JSON(http.StatusOK, gin.H{"status": "running", "devices": devices})
}

func (h *Handler) deviceStatus(ctx context.Context, rec device.Record) DeviceStatus {
	pending, err := h.store.Pending(ctx, rec.Serial)
	if err != nil && !errors.Is(err, device.ErrUnknownDevice) {
		h.logger.Warn("read queue depth failed", zap.String("serial", rec.Serial), zap.Error(err))
	}
	return DeviceStatus{
		Record:  rec,
		Online:  rec.Online(h.now(), h.onlineTimeout),
		Pending: pending,
	}
}

// Device 单个设备详情
// @Summary 设备详情
// @Tags API
// @Produce json
// @Param sn path string true "设备序列号"
// @Success 200 {object} DeviceStatus
// @Router /devices/{sn} [get]
func (h *Handler) Device(c *gin.Context) {
	serial := c.Param("sn")
	rec, ok, err := h.store.Lookup(c.Request.Context(), serial)
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	if !ok {
		h.fail(c, serial, device.ErrUnknownDevice)
		return
	}
	c.JSON(http.StatusOK, h.deviceStatus(c.Request.Context(), *rec))
}

// OpenDoor 远程开门
// @Summary 远程开门
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param seconds query int false "开门秒数(默认5)"
// @Param door query int false "门号(默认1)"
// @Success 200 {object} QueuedResponse
// @Failure 400 {object} map[string]interface{}
// @Router /open/ [post]
func (h *Handler) OpenDoor(c *gin.Context) {
	serial := h.serial(c)
	seconds, err := intParam(c, "seconds", 5)
	if err != nil {
		badRequest(c, err)
		return
	}
	door, err := intParam(c, "door", 1)
	if err != nil {
		badRequest(c, err)
		return
	}
	cmds, err := h.svc.OpenDoor(c.Request.Context(), serial, door, seconds)
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	c.JSON(http.StatusOK, queued(serial, cmds))
}

// Control 透传 CONTROL DEVICE 参数
// @Summary 自定义控制命令
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param cmd query string true "CONTROL DEVICE 之后的参数串"
// @Success 200 {object} QueuedResponse
// @Router /cmd [post]
func (h *Handler) Control(c *gin.Context) {
	serial := h.serial(c)
	cmds, err := h.svc.Control(c.Request.Context(), serial, param(c, "cmd"))
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	c.JSON(http.StatusOK, queued(serial, cmds))
}

// Passage 常开模式开关
// @Summary 常开模式
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param mode query string true "on | off"
// @Success 200 {object} QueuedResponse
// @Router /passage [post]
func (h *Handler) Passage(c *gin.Context) {
	serial := h.serial(c)
	var on bool
	switch strings.ToLower(param(c, "mode")) {
	case "on":
		on = true
	case "off":
	default:
		badRequest(c, errors.New("mode must be on or off"))
		return
	}
	cmds, err := h.svc.Passage(c.Request.Context(), serial, on)
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	c.JSON(http.StatusOK, queued(serial, cmds))
}

// AddCard 发卡并授权
// @Summary 新增卡用户
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param cardno query string true "卡号(十进制或0x十六进制)"
// @Param name query string false "姓名"
// @Param pin query string false "工号，缺省按时间生成"
// @Param starttime query string false "生效时间 DD-MM-YYYY HH:MM:SS"
// @Param endtime query string false "失效时间 DD-MM-YYYY HH:MM:SS"
// @Param doors query int false "门授权位掩码"
// @Success 200 {object} QueuedResponse
// @Failure 400 {object} map[string]interface{}
// @Router /add-card [post]
func (h *Handler) AddCard(c *gin.Context) {
	serial := h.serial(c)
	defMask := h.cfg.DoorMask
	if defMask <= 0 {
		defMask = 1
	}
	doors, err := intParam(c, "doors", defMask)
	if err != nil {
		badRequest(c, err)
		return
	}
	req := command.CardRequest{
		CardNo:    param(c, "cardno"),
		Name:      param(c, "name"),
		Pin:       param(c, "pin"),
		StartTime: param(c, "starttime"),
		EndTime:   param(c, "endtime"),
		DoorMask:  doors,
	}
	cmds, pin, err := h.svc.AddCard(c.Request.Context(), serial, req)
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	resp := queued(serial, cmds)
	resp.Pin = pin
	c.JSON(http.StatusOK, resp)
}

// DeleteUser 删除用户，pin 为空时删除全部
// @Summary 删除用户
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param pin query string false "工号，缺省删除全部"
// @Success 200 {object} QueuedResponse
// @Router /delete-user [post]
func (h *Handler) DeleteUser(c *gin.Context) {
	serial := h.serial(c)
	cmds, err := h.svc.DeleteUser(c.Request.Context(), serial, param(c, "pin"))
	if err != nil {
		h.fail(c, serial, err)
		return
	}
	c.JSON(http.StatusOK, queued(serial, cmds))
}

// CheckUsers 查询设备上的用户三表
// @Summary 核对设备用户
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param wait query bool false "是否等待设备回执"
// @Success 200 {object} QueuedResponse
// @Router /check-users [get]
// @Router /check-users [post]
func (h *Handler) CheckUsers(c *gin.Context) {
	h.query(c, command.UserTableQueries())
}

// Query 任意表查询
// @Summary 查询设备数据表
// @Tags API
// @Produce json
// @Param sn query string false "设备序列号"
// @Param table query string true "表名"
// @Param fields query string false "字段，默认*"
// @Param filter query string false "过滤条件，默认*"
// @Param wait query bool false "是否等待设备回执"
// @Success 200 {object} QueuedResponse
// @Router /query [post]
func (h *Handler) Query(c *gin.Context) {
	table := param(c, "table")
	if table == "" {
		badRequest(c, command.ErrNoQueryTable)
		return
	}
	h.query(c, []command.QuerySpec{{
		Table:  table,
		Fields: param(c, "fields"),
		Filter: param(c, "filter"),
	}})
}

func (h *Handler) query(c *gin.Context, specs []command.QuerySpec) {
	serial := h.serial(c)
	wait, err := boolParam(c, "wait")
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if !wait || h.waits == nil {
		cmds, err := h.svc.Query(ctx, serial, specs...)
		if err != nil {
			h.fail(c, serial, err)
			return
		}
		c.JSON(http.StatusOK, queued(serial, cmds))
		return
	}

	var waiters []*querywait.Waiter
	cancelAll := func() {
		for _, w := range waiters {
			h.waits.Cancel(w)
		}
	}
	// 先登记再入队，避免设备回执早于登记
	cmds, err := h.svc.QueryWith(ctx, serial, func(cmds []command.Command) error {
		for _, cmd := range cmds {
			w, err := h.waits.Expect(cmd.ID)
			if err != nil {
				cancelAll()
				return err
			}
			waiters = append(waiters, w)
		}
		return nil
	}, specs...)
	if err != nil {
		cancelAll()
		h.fail(c, serial, err)
		return
	}

	resp := queued(serial, cmds)
	resp.Result = h.collect(ctx, waiters)
	c.JSON(http.StatusOK, resp)
}

// collect 并发等待所有回执，总耗时不超过一个等待超时
func (h *Handler) collect(ctx context.Context, waiters []*querywait.Waiter) []CommandReply {
	replies := make([]CommandReply, len(waiters))
	var wg sync.WaitGroup
	for i, w := range waiters {
		wg.Add(1)
		go func(i int, w *querywait.Waiter) {
			defer wg.Done()
			res, err := w.Wait(ctx)
			reply := CommandReply{ID: res.ID, Rows: res.Rows}
			switch {
			case err == nil:
				ret := res.Return
				reply.Return = &ret
				h.recordWait("resolved")
			case errors.Is(err, querywait.ErrTimeout):
				reply.Error = err.Error()
				h.recordWait("timeout")
			default:
				reply.Error = err.Error()
				h.recordWait("cancelled")
			}
			replies[i] = reply
		}(i, w)
	}
	wg.Wait()
	return replies
}

func (h *Handler) recordWait(result string) {
	if h.metrics != nil {
		h.metrics.QueryWaitTotal.WithLabelValues(result).Inc()
	}
}
