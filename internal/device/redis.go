package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis Key设计
//
//	{prefix}device:{sn} -> Hash 注册记录
//	{prefix}queue:{sn}  -> List 下行命令（RPUSH 入队 / LPOP 出队）
//	{prefix}devices     -> Set  已注册序列号
const (
	keyDevice  = "device:"
	keyQueue   = "queue:"
	keyDevices = "devices"
)

var touchScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'last_seen', ARGV[1])
if tonumber(ARGV[2]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  if redis.call('EXISTS', KEYS[2]) == 1 then redis.call('PEXPIRE', KEYS[2], ARGV[2]) end
end
return 1
`)

// 存在性检查与 RPUSH 在同一脚本内完成，批量命令保持连续
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local n = redis.call('RPUSH', KEYS[2], unpack(ARGV, 2))
if tonumber(ARGV[1]) > 0 then redis.call('PEXPIRE', KEYS[2], ARGV[1]) end
return n
`)

// RedisStore Redis版本的注册表与命令队列，支持多实例部署
//
// LPOP 是原子操作，同一条命令只会被一个 getrequest 取走。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore 创建 Redis 存储；ttl<=0 表示记录不过期
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

func (s *RedisStore) deviceKey(sn string) string { return s.prefix + keyDevice + sn }
func (s *RedisStore) queueKey(sn string) string  { return s.prefix + keyQueue + sn }
func (s *RedisStore) devicesKey() string         { return s.prefix + keyDevices }

func (s *RedisStore) Register(ctx context.Context, serial string, info map[string]string) (*Record, error) {
	serial = normalizeSerial(serial)
	rec := newRecord(serial, info, s.now())

	infoJSON, err := json.Marshal(rec.Info)
	if err != nil {
		return nil, fmt.Errorf("marshal device info: %w", err)
	}

	dk := s.deviceKey(serial)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.queueKey(serial), dk)
		pipe.HSet(ctx, dk,
			"serial", rec.Serial,
			"registry_code", rec.RegistryCode,
			"session_id", rec.SessionID,
			"registered_at", rec.RegisteredAt.UnixNano(),
			"last_seen", rec.LastSeen.UnixNano(),
			"info", string(infoJSON),
		)
		if s.ttl > 0 {
			pipe.PExpire(ctx, dk, s.ttl)
		}
		pipe.SAdd(ctx, s.devicesKey(), serial)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis register %s: %w", serial, err)
	}
	return rec, nil
}

func (s *RedisStore) Touch(ctx context.Context, serial string) error {
	serial = normalizeSerial(serial)
	keys := []string{s.deviceKey(serial), s.queueKey(serial)}
	err := touchScript.Run(ctx, s.client, keys, s.now().UnixNano(), s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis touch %s: %w", serial, err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, serial string) (*Record, bool, error) {
	serial = normalizeSerial(serial)
	vals, err := s.client.HGetAll(ctx, s.deviceKey(serial)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lookup %s: %w", serial, err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	return decodeRecord(vals), true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	serials, err := s.client.SMembers(ctx, s.devicesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list devices: %w", err)
	}
	out := make([]Record, 0, len(serials))
	for _, sn := range serials {
		rec, ok, err := s.Lookup(ctx, sn)
		if err != nil {
			return nil, err
		}
		if !ok {
			// 记录已过期，顺带清理索引
			s.client.SRem(ctx, s.devicesKey(), sn)
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, serial string, cmds ...string) error {
	serial = normalizeSerial(serial)
	if len(cmds) == 0 {
		n, err := s.client.Exists(ctx, s.deviceKey(serial)).Result()
		if err != nil {
			return fmt.Errorf("redis enqueue %s: %w", serial, err)
		}
		if n == 0 {
			return ErrUnknownDevice
		}
		return nil
	}

	args := make([]interface{}, 0, len(cmds)+1)
	args = append(args, s.ttl.Milliseconds())
	for _, c := range cmds {
		args = append(args, c)
	}
	keys := []string{s.deviceKey(serial), s.queueKey(serial)}
	n, err := enqueueScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis enqueue %s: %w", serial, err)
	}
	if n < 0 {
		return ErrUnknownDevice
	}
	return nil
}

func (s *RedisStore) Dequeue(ctx context.Context, serial string) (string, bool, error) {
	serial = normalizeSerial(serial)
	cmd, err := s.client.LPop(ctx, s.queueKey(serial)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis dequeue %s: %w", serial, err)
	}
	return cmd, true, nil
}

func (s *RedisStore) Pending(ctx context.Context, serial string) (int, error) {
	serial = normalizeSerial(serial)
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, s.deviceKey(serial))
	llen := pipe.LLen(ctx, s.queueKey(serial))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pending %s: %w", serial, err)
	}
	if exists.Val() == 0 {
		return 0, ErrUnknownDevice
	}
	return int(llen.Val()), nil
}

func decodeRecord(vals map[string]string) *Record {
	rec := &Record{
		Serial:       vals["serial"],
		RegistryCode: vals["registry_code"],
		SessionID:    vals["session_id"],
		RegisteredAt: unixNano(vals["registered_at"]),
		LastSeen:     unixNano(vals["last_seen"]),
	}
	if raw := vals["info"]; raw != "" && raw != "null" {
		var info map[string]string
		if err := json.Unmarshal([]byte(raw), &info); err == nil {
			rec.Info = info
		}
	}
	return rec
}

func unixNano(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
