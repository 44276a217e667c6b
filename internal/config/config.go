package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置（设备 /iclock 与业务 API 共用一个监听端口）
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	MaxBodyBytes int64         `mapstructure:"maxBodyBytes"`
	Swagger      bool          `mapstructure:"swagger"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 连接配置；启用后设备会话与命令队列存放在 Redis 中
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	KeyPrefix    string        `mapstructure:"keyPrefix"`
	DeviceTTL    time.Duration `mapstructure:"deviceTTL"`
}

// PushConfig ADMS 推送协议参数，字段名与设备配置块一一对应
type PushConfig struct {
	ServerVersion string        `mapstructure:"serverVersion"`
	ServerName    string        `mapstructure:"serverName"`
	PushProtVer   string        `mapstructure:"pushProtVer"`
	ErrorDelay    int           `mapstructure:"errorDelay"`
	RequestDelay  int           `mapstructure:"requestDelay"`
	TransTimes    string        `mapstructure:"transTimes"`
	TransInterval int           `mapstructure:"transInterval"`
	TransTables   string        `mapstructure:"transTables"`
	Realtime      int           `mapstructure:"realtime"`
	TimeoutSec    int           `mapstructure:"timeoutSec"`
	OnlineTimeout time.Duration `mapstructure:"onlineTimeout"`
	EventMapPath  string        `mapstructure:"eventMapPath"`
	CommandIDMode string        `mapstructure:"commandIDMode"` // time | counter
}

// RateLimitConfig 业务 API 令牌桶限流
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerSec int  `mapstructure:"requestsPerSec"`
	Burst          int  `mapstructure:"burst"`
}

// APIConfig 业务 API 配置
type APIConfig struct {
	DefaultSerial    string          `mapstructure:"defaultSerial"`
	DoorMask         int             `mapstructure:"doorMask"`
	QueryWaitTimeout time.Duration   `mapstructure:"queryWaitTimeout"`
	RateLimit        RateLimitConfig `mapstructure:"rateLimit"`
}

// MQTTConfig 门禁事件 MQTT 推送
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"clientID"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topicPrefix"`
	QoS         int           `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// WebhookConfig 门禁事件 Webhook 推送（HMAC 签名）
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"apiKey"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// NotifyConfig 事件分发配置
type NotifyConfig struct {
	Workers    int           `mapstructure:"workers"`
	BufferSize int           `mapstructure:"bufferSize"`
	MQTT       MQTTConfig    `mapstructure:"mqtt"`
	Webhook    WebhookConfig `mapstructure:"webhook"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Push    PushConfig    `mapstructure:"push"`
	API     APIConfig     `mapstructure:"api"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 ZKPUSH_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 ZKPUSH_，并将点号替换为下划线
	v.SetEnvPrefix("ZKPUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Push.CommandIDMode) {
	case "", "time", "counter":
	default:
		return fmt.Errorf("push.commandIDMode: unsupported value %q", c.Push.CommandIDMode)
	}
	if c.Notify.MQTT.QoS < 0 || c.Notify.MQTT.QoS > 2 {
		return fmt.Errorf("notify.mqtt.qos: must be 0..2, got %d", c.Notify.MQTT.QoS)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "zkpush-server")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "10s")
	v.SetDefault("http.writeTimeout", "40s")
	v.SetDefault("http.maxBodyBytes", 4<<20)
	v.SetDefault("http.swagger", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/zkpush-server.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.keyPrefix", "zkpush:")
	v.SetDefault("redis.deviceTTL", "24h")

	v.SetDefault("push.serverVersion", "3.1.1")
	v.SetDefault("push.serverName", "ADMS")
	v.SetDefault("push.pushProtVer", "2.4.1")
	v.SetDefault("push.errorDelay", 30)
	v.SetDefault("push.requestDelay", 2)
	v.SetDefault("push.transTimes", "00:00\t14:00")
	v.SetDefault("push.transInterval", 1)
	v.SetDefault("push.transTables", "User Transaction")
	v.SetDefault("push.realtime", 1)
	v.SetDefault("push.timeoutSec", 10)
	v.SetDefault("push.onlineTimeout", "2m")
	v.SetDefault("push.eventMapPath", "")
	v.SetDefault("push.commandIDMode", "time")

	v.SetDefault("api.defaultSerial", "")
	v.SetDefault("api.doorMask", 1)
	v.SetDefault("api.queryWaitTimeout", "30s")
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.requestsPerSec", 20)
	v.SetDefault("api.rateLimit.burst", 40)

	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.bufferSize", 256)
	v.SetDefault("notify.mqtt.enabled", false)
	v.SetDefault("notify.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("notify.mqtt.clientID", "")
	v.SetDefault("notify.mqtt.topicPrefix", "zkpush")
	v.SetDefault("notify.mqtt.qos", 1)
	v.SetDefault("notify.mqtt.timeout", "5s")
	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.webhook.timeout", "5s")
	v.SetDefault("notify.webhook.retries", 3)
}
