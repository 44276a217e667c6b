package notify

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

// LogObserver 将门禁事件写入日志
type LogObserver struct {
	logger *zap.Logger
	codes  *rtlog.EventCodes
}

func NewLogObserver(logger *zap.Logger, codes *rtlog.EventCodes) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codes == nil {
		codes = rtlog.DefaultEventCodes()
	}
	return &LogObserver{logger: logger, codes: codes}
}

func (o *LogObserver) OnAccessEvent(_ context.Context, serial string, ev rtlog.AccessEvent) {
	level := zapcore.InfoLevel
	switch ev.Outcome {
	case rtlog.OutcomeDenied, rtlog.OutcomeExpired:
		level = zapcore.WarnLevel
	case rtlog.OutcomeNone:
		level = zapcore.DebugLevel
	}
	if ce := o.logger.Check(level, "access event"); ce != nil {
		ce.Write(
			zap.String("serial", serial),
			zap.String("outcome", string(ev.Outcome)),
			zap.String("event", ev.EventCode),
			zap.String("description", o.codes.Describe(ev.EventCode)),
			zap.String("card_hex", ev.CardHex),
			zap.Uint64("card", ev.CardDecimal),
			zap.String("pin", ev.Pin),
			zap.String("door", ev.DoorID),
			zap.String("time", ev.Time),
		)
	}
}
