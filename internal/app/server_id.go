package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateServerID 服务实例ID，优先使用环境变量 SERVER_ID
// 格式：zkpush-{hostname}-{uuid前8位}
func GenerateServerID() string {
	if serverID := os.Getenv("SERVER_ID"); serverID != "" {
		return serverID
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("zkpush-%s-%s", hostname, uuid.New().String()[:8])
}
