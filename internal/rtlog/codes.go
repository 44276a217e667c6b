package rtlog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EventCodes 事件码 -> 描述，仅用于日志与推送展示，不影响分类
type EventCodes struct {
	Map map[string]string `yaml:"map"`
}

// DefaultEventCodes 控制器常见事件码
func DefaultEventCodes() *EventCodes {
	return &EventCodes{
		Map: map[string]string{
			"0":   "normal punch open",
			"1":   "punch during normal open time zone",
			"2":   "first card normal open",
			"3":   "multi-card open",
			"4":   "emergency password open",
			"5":   "open during normal open time zone",
			"6":   "linkage event triggered",
			"7":   "cancel alarm",
			"8":   "remote opening",
			"9":   "remote closing",
			"20":  "operation interval too short",
			"21":  "door inactive time zone",
			"22":  "illegal time zone",
			"23":  "access denied",
			"24":  "anti-passback",
			"25":  "interlock",
			"26":  "multi-card authentication",
			"27":  "unregistered card",
			"28":  "opening timeout",
			"29":  "card expired",
			"30":  "password error",
			"101": "duress password open",
			"102": "opened accidentally",
			"200": "door opened correctly",
			"201": "door closed correctly",
			"202": "exit button open",
			"204": "normal open time zone over",
			"205": "remote normal opening",
			"220": "auxiliary input disconnected",
			"221": "auxiliary input shorted",
		},
	}
}

// LoadEventCodes 从 YAML 文件加载事件码描述
func LoadEventCodes(path string) (*EventCodes, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event codes: %w", err)
	}
	var m EventCodes
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal event codes: %w", err)
	}
	if m.Map == nil {
		m.Map = make(map[string]string)
	}
	return &m, nil
}

// Describe 返回事件码描述，未知码给出占位文本
func (c *EventCodes) Describe(code string) string {
	if c != nil && c.Map != nil {
		if d, ok := c.Map[code]; ok {
			return d
		}
	}
	if code == "" {
		return "no event"
	}
	return fmt.Sprintf("unknown event(%s)", code)
}

// Merge 用 other 覆盖同名事件码
func (c *EventCodes) Merge(other *EventCodes) {
	if c == nil || other == nil || other.Map == nil {
		return
	}
	if c.Map == nil {
		c.Map = make(map[string]string, len(other.Map))
	}
	for k, v := range other.Map {
		c.Map[k] = v
	}
}
