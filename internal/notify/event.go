// Package notify 门禁事件的下游分发：日志、MQTT、Webhook。
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

// Notification 推送给下游的事件信封
type Notification struct {
	EventID     string            `json:"event_id"`
	Serial      string            `json:"sn"`
	Description string            `json:"description"`
	Timestamp   int64             `json:"timestamp"`
	Event       rtlog.AccessEvent `json:"event"`
}

// NewNotification 组装事件信封，codes 为空时使用默认描述表
func NewNotification(serial string, ev rtlog.AccessEvent, codes *rtlog.EventCodes, now time.Time) Notification {
	if codes == nil {
		codes = rtlog.DefaultEventCodes()
	}
	return Notification{
		EventID:     uuid.NewString(),
		Serial:      serial,
		Description: codes.Describe(ev.EventCode),
		Timestamp:   now.Unix(),
		Event:       ev,
	}
}

// Sink 事件下游
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Recorder 投递结果计数
type Recorder interface {
	NotifyResult(sink, result string)
}

type nopRecorder struct{}

func (nopRecorder) NotifyResult(string, string) {}
