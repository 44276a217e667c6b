// Package timecodec 门禁控制器使用的紧凑时间编码。
//
// 控制器固件把每个月都按 31 天计算，编码结果并不是真实的日历秒数，
// 必须逐位保持一致，不能替换为基于日历的实现。
package timecodec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout 接口层使用的时间格式 DD-MM-YYYY HH:MM:SS
const Layout = "02-01-2006 15:04:05"

const (
	baseYear     = 2000
	daysPerMonth = 31
	secondsInDay = 86400
)

// ErrParse 时间字符串格式不合法
var ErrParse = errors.New("invalid device time")

// ParseError 记录解析失败的原始输入
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse time %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// Encode 将 DD-MM-YYYY HH:MM:SS 转换为设备整数时间
func Encode(s string) (int64, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return 0, &ParseError{Input: s, Err: err}
	}
	return EncodeTime(t), nil
}

// EncodeTime 按设备公式编码；早于 2000 年的时间会得到负数，由调用方决定是否接受
func EncodeTime(t time.Time) int64 {
	days := int64(t.Year()-baseYear)*12*daysPerMonth +
		int64(t.Month()-1)*daysPerMonth +
		int64(t.Day()-1)
	return days*secondsInDay + int64((t.Hour()*60+t.Minute())*60+t.Second())
}

// Decode 将设备整数时间还原为 DD-MM-YYYY HH:MM:SS
func Decode(v int64) string {
	sec := v % 60
	v /= 60
	minute := v % 60
	v /= 60
	hour := v % 24
	v /= 24
	day := v%daysPerMonth + 1
	v /= daysPerMonth
	month := v%12 + 1
	year := v/12 + baseYear
	return fmt.Sprintf("%02d-%02d-%04d %02d:%02d:%02d", day, month, year, hour, minute, sec)
}
