package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/rtlog"
)

const (
	defaultWorkers     = 2
	defaultBufferSize  = 256
	defaultSendTimeout = 10 * time.Second
)

// Dispatcher 异步把事件投递给各个 Sink，缓冲区满时丢弃，不阻塞设备上报
type Dispatcher struct {
	sinks   []Sink
	codes   *rtlog.EventCodes
	rec     Recorder
	logger  *zap.Logger
	workers int
	timeout time.Duration
	now     func() time.Time

	queue chan Notification
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// DispatcherOption 可选配置
type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithRecorder(rec Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if rec != nil {
			d.rec = rec
		}
	}
}

func WithEventCodes(codes *rtlog.EventCodes) DispatcherOption {
	return func(d *Dispatcher) {
		if codes != nil {
			d.codes = codes
		}
	}
}

func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func NewDispatcher(bufferSize int, logger *zap.Logger, sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sinks:   sinks,
		codes:   rtlog.DefaultEventCodes(),
		rec:     nopRecorder{},
		logger:  logger,
		workers: defaultWorkers,
		timeout: defaultSendTimeout,
		now:     time.Now,
		queue:   make(chan Notification, bufferSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start 启动 worker；Stop 关闭队列后 worker 排空剩余事件再退出
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started || d.closed {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("notify dispatcher started",
		zap.Int("workers", d.workers),
		zap.Int("sinks", len(d.sinks)))
}

// OnAccessEvent 实现 rtlog.Observer
func (d *Dispatcher) OnAccessEvent(_ context.Context, serial string, ev rtlog.AccessEvent) {
	if len(d.sinks) == 0 || ev.Outcome == rtlog.OutcomeNone {
		return
	}
	n := NewNotification(serial, ev, d.codes, d.now())

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- n:
	default:
		d.rec.NotifyResult("dispatcher", "dropped")
		d.logger.Warn("notify queue full, event dropped",
			zap.String("serial", serial),
			zap.String("event_id", n.EventID))
	}
}

// Stop 关闭队列并等待 worker 退出
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
	d.logger.Debug("notify worker stopped", zap.Int("worker", id))
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, s := range d.sinks {
		// 关停期间仍尽量投递已入队事件
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		err := s.Send(sendCtx, n)
		cancel()
		if err != nil {
			d.rec.NotifyResult(s.Name(), "error")
			d.logger.Warn("notify failed",
				zap.String("sink", s.Name()),
				zap.String("serial", n.Serial),
				zap.String("event_id", n.EventID),
				zap.Error(err))
			continue
		}
		d.rec.NotifyResult(s.Name(), "ok")
	}
}
