package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// entry 单台设备的状态，独立加锁，设备之间互不阻塞
type entry struct {
	mu     sync.Mutex
	record Record
	queue  []string
}

// MemoryStore 进程内实现，进程重启后状态丢失（设备会重新注册）
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]*entry
	now     func() time.Time
}

// MemoryOption 配置 MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock 注入时钟，测试使用
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		devices: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) get(serial string) (*entry, bool) {
	s.mu.RLock()
	e, ok := s.devices[serial]
	s.mu.RUnlock()
	return e, ok
}

// Register 已存在的设备原地重置，避免并发入队写到被替换的旧队列
func (s *MemoryStore) Register(_ context.Context, serial string, info map[string]string) (*Record, error) {
	serial = normalizeSerial(serial)
	rec := newRecord(serial, info, s.now())

	s.mu.Lock()
	e, ok := s.devices[serial]
	if !ok {
		e = &entry{}
		s.devices[serial] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.record = *rec
	e.queue = nil
	e.mu.Unlock()

	out := *rec
	return &out, nil
}

func (s *MemoryStore) Touch(_ context.Context, serial string) error {
	e, ok := s.get(normalizeSerial(serial))
	if !ok {
		return nil
	}
	now := s.now()
	e.mu.Lock()
	e.record.LastSeen = now
	e.mu.Unlock()
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, serial string) (*Record, bool, error) {
	e, ok := s.get(normalizeSerial(serial))
	if !ok {
		return nil, false, nil
	}
	e.mu.Lock()
	rec := e.record
	rec.Info = copyInfo(e.record.Info)
	e.mu.Unlock()
	return &rec, true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.devices))
	for _, e := range s.devices {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		rec := e.record
		rec.Info = copyInfo(e.record.Info)
		e.mu.Unlock()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}

func (s *MemoryStore) Enqueue(_ context.Context, serial string, cmds ...string) error {
	e, ok := s.get(normalizeSerial(serial))
	if !ok {
		return ErrUnknownDevice
	}
	e.mu.Lock()
	e.queue = append(e.queue, cmds...)
	e.mu.Unlock()
	return nil
}

func (s *MemoryStore) Dequeue(_ context.Context, serial string) (string, bool, error) {
	e, ok := s.get(normalizeSerial(serial))
	if !ok {
		return "", false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return "", false, nil
	}
	cmd := e.queue[0]
	e.queue[0] = ""
	e.queue = e.queue[1:]
	return cmd, true, nil
}

func (s *MemoryStore) Pending(_ context.Context, serial string) (int, error) {
	e, ok := s.get(normalizeSerial(serial))
	if !ok {
		return 0, ErrUnknownDevice
	}
	e.mu.Lock()
	n := len(e.queue)
	e.mu.Unlock()
	return n, nil
}
