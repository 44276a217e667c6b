package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
)

func TestGenerateServerID(t *testing.T) {
	t.Setenv("SERVER_ID", "")
	id := GenerateServerID()
	assert.True(t, strings.HasPrefix(id, "zkpush-"), id)

	t.Setenv("SERVER_ID", "node-a")
	assert.Equal(t, "node-a", GenerateServerID())
}

func TestLoadEventCodes(t *testing.T) {
	logger := zap.NewNop()
	assert.Equal(t, "card expired", LoadEventCodes("", logger).Describe("29"))
	assert.Equal(t, "card expired", LoadEventCodes("/nonexistent.yaml", logger).Describe("29"))

	path := filepath.Join(t.TempDir(), "codes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("map:\n  \"29\": \"pass expired\"\n  \"300\": \"custom\"\n"), 0o600))
	codes := LoadEventCodes(path, logger)
	assert.Equal(t, "pass expired", codes.Describe("29"))
	assert.Equal(t, "custom", codes.Describe("300"))
	assert.Equal(t, "normal punch open", codes.Describe("0"))
}

func TestNewObservers_NoSinks(t *testing.T) {
	sinks, closeFn := NewNotifySinks(config.NotifyConfig{}, zap.NewNop())
	defer closeFn()
	assert.Empty(t, sinks)

	obs, d := NewObservers(config.NotifyConfig{}, nil, sinks, nil, zap.NewNop())
	assert.NotNil(t, obs)
	assert.Nil(t, d)

	sinks, _ = NewNotifySinks(config.NotifyConfig{Webhook: config.WebhookConfig{Enabled: true, URL: "http://127.0.0.1:1/hook", Retries: 0}}, zap.NewNop())
	require.Len(t, sinks, 1)
	assert.Equal(t, "webhook", sinks[0].Name())
}

func TestOnlineMonitor(t *testing.T) {
	_, appm := NewMetrics()
	store := NewDeviceStore(nil, config.RedisConfig{}, zap.NewNop())
	_, err := store.Register(context.Background(), "SN1", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewOnlineMonitor(store, appm, time.Minute, zap.NewNop()).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(appm.OnlineGauge) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, isMemory := store.(*device.MemoryStore)
	assert.True(t, isMemory)
}
