package command

import (
	"strings"
	"sync/atomic"
	"time"
)

// idModulo 命令ID取值范围 [0, 10000)
const idModulo = 10000

// IDSource 为一批命令分配ID
//
// 只保证同一批次内不重复，跨批次的唯一性是尽力而为。
type IDSource interface {
	Next(n int) []int
}

// TimeIDs 秒级时间戳取模 10000，批次内依次递增（与设备侧约定一致）
type TimeIDs struct {
	Now func() time.Time
}

func (s TimeIDs) Next(n int) []int {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	base := int(now().Unix() % idModulo)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = base + i
	}
	return ids
}

// CounterIDs 进程内原子计数，回绕到 1
type CounterIDs struct {
	n atomic.Int64
}

func (s *CounterIDs) Next(n int) []int {
	end := s.n.Add(int64(n))
	ids := make([]int, n)
	for i := range ids {
		ids[i] = int((end-int64(n)+int64(i))%(idModulo-1)) + 1
	}
	return ids
}

// NewIDSource 按配置名创建ID源，未知值使用时间模式
func NewIDSource(mode string) IDSource {
	if strings.EqualFold(mode, "counter") {
		return &CounterIDs{}
	}
	return TimeIDs{}
}
