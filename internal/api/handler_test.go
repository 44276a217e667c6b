package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/command"
	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/metrics"
	"github.com/taoyao-code/zkpush-server/internal/querywait"
)

type apiFixture struct {
	router *gin.Engine
	store  *device.MemoryStore
	waits  *querywait.Table
}

func newAPIFixture(t *testing.T, cfg config.APIConfig) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := device.NewMemoryStore()
	_, err := store.Register(context.Background(), "SN1", nil)
	require.NoError(t, err)

	m := metrics.NewAppMetrics(metrics.NewRegistry())
	// 计数器 ID 保证同一秒内多次调用不冲突
	svc := command.NewService(command.NewBuilder(&command.CounterIDs{}, time.Now), store, m, zap.NewNop())
	waits := querywait.NewTable(200 * time.Millisecond)

	r := gin.New()
	h := NewHandler(store, svc, waits, cfg, time.Minute, m, zap.NewNop())
	RegisterRoutes(r, h, cfg, zap.NewNop())
	return &apiFixture{router: r, store: store, waits: waits}
}

func (f *apiFixture) call(method, path string, params url.Values) (*httptest.ResponseRecorder, map[string]any) {
	target := path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func (f *apiFixture) drain(t *testing.T, sn string) []string {
	t.Helper()
	var out []string
	for {
		cmd, ok, err := f.store.Dequeue(context.Background(), sn)
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, cmd)
	}
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})
	w, body := f.call(http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", body["status"])

	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	dev := devices[0].(map[string]any)
	assert.Equal(t, "SN1", dev["sn"])
	assert.Equal(t, true, dev["online"])
	assert.Equal(t, 0.0, dev["pending"])
}

func TestOpenDoor(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})

	w, body := f.call(http.MethodPost, "/open/", url.Values{"sn": {"SN1"}, "seconds": {"12"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, "SN1", body["device"])

	cmds := f.drain(t, "SN1")
	require.Len(t, cmds, 1)
	assert.True(t, strings.HasSuffix(cmds[0], ":CONTROL DEVICE 01010112"), cmds[0])

	w, _ = f.call(http.MethodPost, "/open/", url.Values{"sn": {"SN1"}, "seconds": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.call(http.MethodPost, "/open/", url.Values{"sn": {"SN1"}, "seconds": {"999"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownDevice(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})

	for _, tc := range []struct {
		method, path string
		params       url.Values
	}{
		{http.MethodPost, "/open/", url.Values{"sn": {"ghost"}}},
		{http.MethodPost, "/passage", url.Values{"sn": {"ghost"}, "mode": {"on"}}},
		{http.MethodPost, "/add-card", url.Values{"sn": {"ghost"}, "cardno": {"100"}}},
		{http.MethodPost, "/delete-user", url.Values{"sn": {"ghost"}}},
		{http.MethodGet, "/check-users", url.Values{"sn": {"ghost"}, "wait": {"true"}}},
		{http.MethodGet, "/devices/ghost", nil},
	} {
		w, body := f.call(tc.method, tc.path, tc.params)
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.Equal(t, "device not found", body["error"], tc.path)
		assert.Equal(t, "ghost", body["device"], tc.path)
	}
	// 未知设备不影响已注册设备的队列，也不遗留等待者
	assert.Empty(t, f.drain(t, "SN1"))
	assert.Equal(t, 0, f.waits.Len())
}

func TestDefaultSerial(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{DefaultSerial: "SN1"})
	w, body := f.call(http.MethodPost, "/passage", url.Values{"mode": {"off"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SN1", body["device"])

	cmds := f.drain(t, "SN1")
	require.Len(t, cmds, 1)
	assert.True(t, strings.HasSuffix(cmds[0], ":CONTROL DEVICE 0101020000"))

	w, _ = f.call(http.MethodPost, "/passage", url.Values{"mode": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddCard(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{DoorMask: 3})

	w, body := f.call(http.MethodPost, "/add-card", url.Values{
		"sn":        {"SN1"},
		"cardno":    {"0x1A2B3C"},
		"name":      {"Ivan"},
		"pin":       {"77"},
		"starttime": {"01-01-2026 00:00:00"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "77", body["pin"])

	cmds := f.drain(t, "SN1")
	require.Len(t, cmds, 3)
	assert.Contains(t, cmds[0], "DATA UPDATE user CardNo=1715004\tPin=77")
	assert.Contains(t, cmds[2], "AuthorizeDoorId=3")

	for _, params := range []url.Values{
		{"sn": {"SN1"}},
		{"sn": {"SN1"}, "cardno": {"100"}, "endtime": {"2026/01/01"}},
		{"sn": {"SN1"}, "cardno": {"0xZZ"}},
		{"sn": {"SN1"}, "cardno": {"100"}, "doors": {"x"}},
	} {
		w, _ := f.call(http.MethodPost, "/add-card", params)
		assert.Equal(t, http.StatusBadRequest, w.Code, params.Encode())
	}
	assert.Empty(t, f.drain(t, "SN1"))
}

func TestDeleteUserAndControl(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})

	w, _ := f.call(http.MethodPost, "/delete-user", url.Values{"sn": {"SN1"}})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.call(http.MethodPost, "/cmd", url.Values{"sn": {"SN1"}, "cmd": {"01010103"}})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.call(http.MethodPost, "/cmd", url.Values{"sn": {"SN1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	cmds := f.drain(t, "SN1")
	require.Len(t, cmds, 4)
	assert.True(t, strings.HasSuffix(cmds[0], "DATA DELETE user Pin=*"))
	assert.True(t, strings.HasSuffix(cmds[3], "CONTROL DEVICE 01010103"))
}

func TestCheckUsers_NoWait(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})
	w, body := f.call(http.MethodGet, "/check-users", url.Values{"sn": {"SN1"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["command_ids"], 3)
	assert.Nil(t, body["result"])
	assert.Len(t, f.drain(t, "SN1"), 3)
}

func TestQuery_WaitResolvedAndTimeout(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{})

	// 模拟设备：取走命令后回执并附带查询行
	go func() {
		for i := 0; i < 200; i++ {
			cmd, ok, _ := f.store.Dequeue(context.Background(), "SN1")
			if !ok {
				time.Sleep(2 * time.Millisecond)
				continue
			}
			var id int
			_, _ = fmt.Sscanf(cmd, "C:%d:", &id)
			f.waits.AppendRows(id, []map[string]string{{"pin": "77"}})
			f.waits.Resolve(querywait.Result{ID: id, Return: 1, Cmd: "DATA"})
			return
		}
	}()

	w, body := f.call(http.MethodPost, "/query", url.Values{"sn": {"SN1"}, "table": {"user"}, "wait": {"1"}})
	require.Equal(t, http.StatusOK, w.Code)
	result := body["result"].([]any)
	require.Len(t, result, 1)
	first := result[0].(map[string]any)
	assert.Equal(t, 1.0, first["return"])
	assert.Len(t, first["rows"], 1)

	// 无人回执则超时
	w, body = f.call(http.MethodPost, "/query", url.Values{"sn": {"SN1"}, "table": {"user"}, "wait": {"true"}})
	require.Equal(t, http.StatusOK, w.Code)
	result = body["result"].([]any)
	assert.Equal(t, querywait.ErrTimeout.Error(), result[0].(map[string]any)["error"])
	assert.Equal(t, 0, f.waits.Len())

	w, _ = f.call(http.MethodPost, "/query", url.Values{"sn": {"SN1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = f.call(http.MethodPost, "/query", url.Values{"sn": {"SN1"}, "table": {"user"}, "wait": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimitedAPI(t *testing.T) {
	f := newAPIFixture(t, config.APIConfig{RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerSec: 1, Burst: 1}})
	w, _ := f.call(http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = f.call(http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
