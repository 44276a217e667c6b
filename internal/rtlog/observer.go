package rtlog

import "context"

// Observer 接收解析后的门禁事件
type Observer interface {
	OnAccessEvent(ctx context.Context, serial string, ev AccessEvent)
}

type ObserverFunc func(ctx context.Context, serial string, ev AccessEvent)

func (f ObserverFunc) OnAccessEvent(ctx context.Context, serial string, ev AccessEvent) {
	if f != nil {
		f(ctx, serial, ev)
	}
}

// Observers 依次通知多个观察者
type Observers []Observer

func (o Observers) OnAccessEvent(ctx context.Context, serial string, ev AccessEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.OnAccessEvent(ctx, serial, ev)
		}
	}
}

func NopObserver() Observer {
	return ObserverFunc(func(context.Context, string, AccessEvent) {})
}
