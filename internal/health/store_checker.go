package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/zkpush-server/internal/device"
)

// StoreChecker 设备注册表可读，并报告在线设备数
type StoreChecker struct {
	store         device.Store
	onlineTimeout time.Duration
	now           func() time.Time
}

func NewStoreChecker(store device.Store, onlineTimeout time.Duration) *StoreChecker {
	return &StoreChecker{store: store, onlineTimeout: onlineTimeout, now: time.Now}
}

func (c *StoreChecker) Name() string {
	return "device_store"
}

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	list, err := c.store.List(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("list devices failed: %v", err),
			Latency: time.Since(start),
		}
	}

	now := c.now()
	online := 0
	for _, rec := range list {
		if rec.Online(now, c.onlineTimeout) {
			online++
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]any{
			"devices": len(list),
			"online":  online,
		},
		Latency: time.Since(start),
	}
}
