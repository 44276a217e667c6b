// Package command 构造 ADMS 下行命令并投递到设备命令队列。
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taoyao-code/zkpush-server/internal/rtlog"
	"github.com/taoyao-code/zkpush-server/internal/timecodec"
)

// 命令前缀与固定片段
const (
	controlPrefix = "CONTROL DEVICE "
	passagePrefix = controlPrefix + "010102"
	passageOn     = "FF00"
	passageOff    = "0000"

	opOutput    = 1 // 输出操作
	relayDoor   = 1 // 门锁继电器
	pinModulo   = 1000000
	wildcardPin = "*"
)

// 用户相关的三张表，新增和删除都按此顺序下发
var userTables = []string{"user", "mulcarduser", "userauthorize"}

var (
	ErrInvalidDoor    = errors.New("door must be between 1 and 99")
	ErrInvalidSeconds = errors.New("seconds must be between 0 and 254")
	ErrMissingCard    = errors.New("card number is required")
	ErrEmptyCommand   = errors.New("control command is empty")
	ErrNoQueryTable   = errors.New("query table is required")
)

// Command 一条带ID的下行命令，线上格式 C:<ID>:<Body>
type Command struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
}

func (c Command) String() string {
	return fmt.Sprintf("C:%d:%s", c.ID, c.Body)
}

// CardRequest 开卡参数，日期格式 DD-MM-YYYY HH:MM:SS，可为空
type CardRequest struct {
	CardNo    string
	Name      string
	Pin       string
	StartTime string
	EndTime   string
	DoorMask  int
}

// QuerySpec DATA QUERY 参数
type QuerySpec struct {
	Table  string
	Fields string
	Filter string
}

// Builder 只负责拼装命令文本
type Builder struct {
	ids IDSource
	now func() time.Time
}

func NewBuilder(ids IDSource, now func() time.Time) *Builder {
	if ids == nil {
		ids = TimeIDs{Now: now}
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{ids: ids, now: now}
}

func (b *Builder) batch(bodies ...string) []Command {
	ids := b.ids.Next(len(bodies))
	out := make([]Command, len(bodies))
	for i, body := range bodies {
		out[i] = Command{ID: ids[i], Body: body}
	}
	return out
}

// formatDuration 小于 10 秒补齐两位，其余原样输出（设备格式约定）
func formatDuration(seconds int) string {
	if seconds < 10 {
		return "0" + strconv.Itoa(seconds)
	}
	return strconv.Itoa(seconds)
}

// DoorOpen 开门：CONTROL DEVICE 01 <门号> 01 <秒数>
func (b *Builder) DoorOpen(door, seconds int) (Command, error) {
	if door < 1 || door > 99 {
		return Command{}, ErrInvalidDoor
	}
	if seconds < 0 || seconds > 254 {
		return Command{}, ErrInvalidSeconds
	}
	body := fmt.Sprintf("%s%02d%02d%02d%s", controlPrefix, opOutput, door, relayDoor, formatDuration(seconds))
	return b.batch(body)[0], nil
}

// Control 透传 CONTROL DEVICE 之后的参数
func (b *Builder) Control(suffix string) (Command, error) {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return Command{}, ErrEmptyCommand
	}
	return b.batch(controlPrefix + suffix)[0], nil
}

// Passage 常开模式开关
func (b *Builder) Passage(on bool) Command {
	if on {
		return b.batch(passagePrefix + passageOn)[0]
	}
	return b.batch(passagePrefix + passageOff)[0]
}

// AddCard 下发 user / mulcarduser / userauthorize 三条命令，返回命令与实际使用的 PIN
func (b *Builder) AddCard(req CardRequest) ([]Command, string, error) {
	card, err := normalizeCard(req.CardNo)
	if err != nil {
		return nil, "", err
	}
	start, err := encodeOptional(req.StartTime)
	if err != nil {
		return nil, "", err
	}
	end, err := encodeOptional(req.EndTime)
	if err != nil {
		return nil, "", err
	}
	pin := strings.TrimSpace(req.Pin)
	if pin == "" {
		pin = strconv.FormatInt(b.now().Unix()%pinModulo, 10)
	}
	mask := req.DoorMask
	if mask <= 0 {
		mask = 1
	}

	user := fmt.Sprintf("DATA UPDATE user CardNo=%s\tPin=%s\tPassword=\tGroup=0\tStartTime=%d\tEndTime=%d\tName=%s\tPrivilege=0",
		card, pin, start, end, sanitize(req.Name))
	mulcard := fmt.Sprintf("DATA UPDATE mulcarduser Pin=%s\tCardNo=%s\tLossCardFlag=0\tCardType=0", pin, card)
	auth := fmt.Sprintf("DATA UPDATE userauthorize Pin=%s\tAuthorizeTimezoneId=1\tAuthorizeDoorId=%d\tDevID=1", pin, mask)
	return b.batch(user, mulcard, auth), pin, nil
}

// DeleteUser 删除三张表中的用户，pin 为空时删除全部
func (b *Builder) DeleteUser(pin string) []Command {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		pin = wildcardPin
	}
	bodies := make([]string, len(userTables))
	for i, table := range userTables {
		bodies[i] = fmt.Sprintf("DATA DELETE %s Pin=%s", table, pin)
	}
	return b.batch(bodies...)
}

// Query 每个查询一条命令，各自独立ID
func (b *Builder) Query(specs ...QuerySpec) []Command {
	bodies := make([]string, len(specs))
	for i, q := range specs {
		fields := q.Fields
		if fields == "" {
			fields = "*"
		}
		filter := q.Filter
		if filter == "" {
			filter = "*"
		}
		bodies[i] = fmt.Sprintf("DATA QUERY tablename=%s,fielddesc=%s,filter=%s", q.Table, fields, filter)
	}
	return b.batch(bodies...)
}

// UserTableQueries 核对用户时查询的三张表
func UserTableQueries() []QuerySpec {
	specs := make([]QuerySpec, len(userTables))
	for i, table := range userTables {
		specs[i] = QuerySpec{Table: table, Fields: "*", Filter: "*"}
	}
	return specs
}

// normalizeCard 卡号统一为十进制；0x 前缀按十六进制解析
func normalizeCard(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingCard
	}
	if strings.HasPrefix(strings.ToLower(raw), "0x") {
		_, dec, err := rtlog.DecodeCard(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(dec, 10), nil
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return "", &rtlog.CardDecodeError{Raw: raw, Err: err}
	}
	return raw, nil
}

func encodeOptional(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return timecodec.Encode(s)
}

// sanitize 去掉会破坏 tab 分隔格式的字符
func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
}
