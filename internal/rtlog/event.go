// Package rtlog 解析控制器通过 cdata 上传的实时事件（table=rtlog）。
package rtlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Outcome 事件语义分类
type Outcome string

const (
	OutcomeNone         Outcome = "none"         // 无卡且非远程开门，可忽略
	OutcomeGranted      Outcome = "granted"      // 刷卡通过
	OutcomeDenied       Outcome = "denied"       // 刷卡被拒
	OutcomeExpired      Outcome = "expired"      // 卡不在有效时段
	OutcomeRemoteOpen   Outcome = "remote_open"  // 远程/接口开门
	OutcomeUnclassified Outcome = "unclassified" // 有卡但事件码未归类
)

// 厂商文档中的事件码
const (
	CodeGranted    = "0"
	CodeRemoteOpen = "8"
	CodeDenied     = "27"
	CodeExpired    = "29"
)

// ErrCardDecode 卡号不是合法十六进制
var ErrCardDecode = errors.New("invalid card number")

// CardDecodeError 卡号解析失败
type CardDecodeError struct {
	Raw string
	Err error
}

func (e *CardDecodeError) Error() string {
	return fmt.Sprintf("decode card %q: %v", e.Raw, e.Err)
}

func (e *CardDecodeError) Unwrap() []error { return []error{ErrCardDecode, e.Err} }

// AccessEvent 一条实时事件，只用于分类、记录与通知，不落库
type AccessEvent struct {
	CardHex     string  `json:"card_hex"`
	CardDecimal uint64  `json:"card"`
	EventCode   string  `json:"event"`
	Pin         string  `json:"pin"`
	Time        string  `json:"time,omitempty"`
	DoorID      string  `json:"door,omitempty"`
	InOut       string  `json:"inout,omitempty"`
	VerifyType  string  `json:"verify_type,omitempty"`
	Index       string  `json:"index,omitempty"`
	Outcome     Outcome `json:"outcome"`
}

// HasCard 卡号为 0 表示无卡
func (e AccessEvent) HasCard() bool { return e.CardDecimal != 0 }

// DecodeCard 去掉 0x 前缀、转小写后按十六进制解析
func DecodeCard(raw string) (string, uint64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return "0", 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return "", 0, &CardDecodeError{Raw: raw, Err: err}
	}
	return s, v, nil
}

// Classify 事件码分类。远程开门不依赖卡号，其余事件无卡时忽略。
func Classify(code string, hasCard bool) Outcome {
	if code == CodeRemoteOpen {
		return OutcomeRemoteOpen
	}
	if !hasCard {
		return OutcomeNone
	}
	switch code {
	case CodeGranted:
		return OutcomeGranted
	case CodeDenied:
		return OutcomeDenied
	case CodeExpired:
		return OutcomeExpired
	case "":
		return OutcomeNone
	default:
		return OutcomeUnclassified
	}
}

// ParseRecord 解析一条 tab 分隔的 key=value 记录
func ParseRecord(line string) (AccessEvent, error) {
	fields := SplitFields(line, "\t")

	ev := AccessEvent{
		EventCode:  fields["event"],
		Pin:        valueOr(fields, "pin", "0"),
		Time:       fields["time"],
		DoorID:     fields["eventaddr"],
		InOut:      fields["inoutstatus"],
		VerifyType: fields["verifytype"],
		Index:      fields["index"],
	}

	hex, dec, err := DecodeCard(valueOr(fields, "cardno", "0"))
	if err != nil {
		return AccessEvent{}, err
	}
	ev.CardHex = hex
	ev.CardDecimal = dec
	ev.Outcome = Classify(ev.EventCode, ev.HasCard())
	return ev, nil
}

// Parse 逐行解析上传内容，单条失败不影响其余记录
func Parse(payload string) ([]AccessEvent, []error) {
	var (
		events []AccessEvent
		errs   []error
	)
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, err := ParseRecord(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

// SplitFields 按分隔符拆分 key=value，键统一转小写；无 '=' 的片段忽略
func SplitFields(line, sep string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(line, sep) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func valueOr(m map[string]string, key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}
