// Package device 维护控制器注册信息与每台设备的下行命令队列。
package device

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownDevice 设备未注册
var ErrUnknownDevice = errors.New("device not found")

// sessionSuffix 会话ID派生用的固定后缀
const sessionSuffix = "zkpush-session"

// Record 设备注册记录，以序列号为主键
//
// 会话令牌只下发不校验，后续请求仅凭 SN 识别设备。
type Record struct {
	Serial       string            `json:"sn"`
	RegistryCode string            `json:"registry_code"`
	SessionID    string            `json:"session_id"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`
	Info         map[string]string `json:"info,omitempty"`
}

// Online 最近一次通信是否在超时窗口内
func (r Record) Online(now time.Time, timeout time.Duration) bool {
	return !r.LastSeen.IsZero() && now.Sub(r.LastSeen) <= timeout
}

// Store 注册表与命令队列的统一存储接口，支持内存和Redis两种实现
type Store interface {
	// Register 注册或重新注册设备：签发新令牌并清空命令队列
	Register(ctx context.Context, serial string, info map[string]string) (*Record, error)

	// Touch 更新最近通信时间，未注册设备静默忽略
	Touch(ctx context.Context, serial string) error

	// Lookup 查询设备记录
	Lookup(ctx context.Context, serial string) (*Record, bool, error)

	// List 返回全部已注册设备
	List(ctx context.Context) ([]Record, error)

	// Enqueue 批量追加命令到队尾，未注册返回 ErrUnknownDevice
	Enqueue(ctx context.Context, serial string, cmds ...string) error

	// Dequeue 弹出队首命令；队列为空或设备未注册时 ok=false
	Dequeue(ctx context.Context, serial string) (cmd string, ok bool, err error)

	// Pending 当前排队的命令数
	Pending(ctx context.Context, serial string) (int, error)
}

// RegistryCode 由序列号与当前时间派生，截取 16 位十六进制
func RegistryCode(serial string, now time.Time) string {
	sum := md5.Sum([]byte(serial + strconv.FormatInt(now.Unix(), 10)))
	return hex.EncodeToString(sum[:])[:16]
}

// SessionID 由序列号与固定后缀派生
func SessionID(serial string) string {
	sum := md5.Sum([]byte(serial + sessionSuffix))
	return hex.EncodeToString(sum[:])
}

// ParseInfo 解析注册请求体中的设备信息（逗号或换行分隔的 key=value）
func ParseInfo(body string) map[string]string {
	info := make(map[string]string)
	body = strings.NewReplacer("\r\n", ",", "\n", ",", "\t", ",").Replace(body)
	for _, part := range strings.Split(body, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		info[k] = strings.TrimSpace(v)
	}
	return info
}

func newRecord(serial string, info map[string]string, now time.Time) *Record {
	return &Record{
		Serial:       serial,
		RegistryCode: RegistryCode(serial, now),
		SessionID:    SessionID(serial),
		RegisteredAt: now,
		LastSeen:     now,
		Info:         copyInfo(info),
	}
}

func copyInfo(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func normalizeSerial(serial string) string {
	return strings.TrimSpace(serial)
}
