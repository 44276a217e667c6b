package push

import (
	"strconv"
	"strings"

	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/device"
)

// configBlock 下发给设备的参数块，行序固定。
// withRegistry 为 true 时（cdata GET）额外包含 registry、RegistryCode 与 PushProtVer 三行。
func configBlock(cfg config.PushConfig, rec *device.Record, withRegistry bool) string {
	lines := make([]string, 0, 13)
	if withRegistry {
		lines = append(lines, "registry=ok", "RegistryCode="+rec.RegistryCode)
	}
	lines = append(lines,
		"ServerVersion="+cfg.ServerVersion,
		"ServerName="+cfg.ServerName,
	)
	if withRegistry {
		lines = append(lines, "PushProtVer="+cfg.PushProtVer)
	}
	lines = append(lines,
		"ErrorDelay="+strconv.Itoa(cfg.ErrorDelay),
		"RequestDelay="+strconv.Itoa(cfg.RequestDelay),
		"TransTimes="+cfg.TransTimes,
		"TransInterval="+strconv.Itoa(cfg.TransInterval),
		"TransTables="+cfg.TransTables,
		"Realtime="+strconv.Itoa(cfg.Realtime),
		"SessionID="+rec.SessionID,
		"TimeoutSec="+strconv.Itoa(cfg.TimeoutSec),
	)
	return strings.Join(lines, "\n")
}
