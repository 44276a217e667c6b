package health

import "sync/atomic"

// Readiness /readyz 使用的启动就绪标记
type Readiness struct {
	storeReady atomic.Bool
	httpReady  atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetStoreReady(v bool) { r.storeReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool)  { r.httpReady.Store(v) }

// Ready 设备存储与 HTTP 监听均已就绪
func (r *Readiness) Ready() bool {
	return r.storeReady.Load() && r.httpReady.Load()
}
