// Package querywait 关联下行命令ID与设备回执（devicecmd），供接口调用方有限等待结果。
package querywait

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrTimeout   = errors.New("device result timeout")
	ErrDuplicate = errors.New("command id already awaited")
)

const defaultTimeout = 30 * time.Second

// Result 设备对一条命令的回执，Rows 为 querydata 上传的查询结果
type Result struct {
	ID     int                 `json:"id"`
	Return int                 `json:"return"`
	Cmd    string              `json:"cmd"`
	Rows   []map[string]string `json:"rows,omitempty"`
}

// OK 设备约定 Return >= 0 为成功
func (r Result) OK() bool { return r.Return >= 0 }

// Waiter 单条命令的等待句柄
type Waiter struct {
	id    int
	table *Table
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	rows   []map[string]string
	result Result
}

func (w *Waiter) resolve(r Result) {
	w.once.Do(func() {
		w.mu.Lock()
		r.Rows = append(w.rows, r.Rows...)
		w.result = r
		w.mu.Unlock()
		close(w.done)
	})
}

// Wait 阻塞直到回执到达、超时或 ctx 取消；返回前一定从表中移除
func (w *Waiter) Wait(ctx context.Context) (Result, error) {
	timer := time.NewTimer(w.table.timeout)
	defer timer.Stop()
	defer w.table.remove(w.id, w)

	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.result, nil
	case <-timer.C:
		return Result{ID: w.id}, ErrTimeout
	case <-ctx.Done():
		return Result{ID: w.id}, ctx.Err()
	}
}

// Table 命令ID -> 等待者
type Table struct {
	mu      sync.Mutex
	waiters map[int]*Waiter
	timeout time.Duration
}

func NewTable(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Table{waiters: make(map[int]*Waiter), timeout: timeout}
}

// Expect 在命令入队前登记，避免回执先于登记到达
func (t *Table) Expect(id int) (*Waiter, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.waiters[id]; ok {
		return nil, ErrDuplicate
	}
	w := &Waiter{id: id, table: t, done: make(chan struct{})}
	t.waiters[id] = w
	return w, nil
}

// Cancel 放弃等待（例如入队失败）
func (t *Table) Cancel(w *Waiter) {
	if w != nil {
		t.remove(w.id, w)
	}
}

// AppendRows 追加 querydata 上传的数据行，无人等待时返回 false
func (t *Table) AppendRows(id int, rows []map[string]string) bool {
	t.mu.Lock()
	w, ok := t.waiters[id]
	t.mu.Unlock()
	if !ok {
		return false
	}
	w.mu.Lock()
	w.rows = append(w.rows, rows...)
	w.mu.Unlock()
	return true
}

// Resolve 设备回执到达；没有匹配的等待者不是错误
func (t *Table) Resolve(r Result) bool {
	t.mu.Lock()
	w, ok := t.waiters[r.ID]
	if ok {
		delete(t.waiters, r.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	w.resolve(r)
	return true
}

// Len 当前等待数
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

func (t *Table) remove(id int, w *Waiter) {
	t.mu.Lock()
	if cur, ok := t.waiters[id]; ok && cur == w {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
}
