package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/config"
)

const (
	mqttConnectTimeout    = 10 * time.Second
	mqttDefaultTimeout    = 5 * time.Second
	mqttKeepAlive         = 60 * time.Second
	mqttDisconnectQuiesce = 250 // 毫秒
)

var ErrMQTTConnect = errors.New("mqtt connect failed")

// publisher paho 客户端中本 sink 需要的部分
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink 把事件发布到 <prefix>/<sn>/events
type MQTTSink struct {
	client  publisher
	prefix  string
	qos     byte
	timeout time.Duration
}

func buildMQTTOptions(cfg config.MQTTConfig, logger *zap.Logger) *pahomqtt.ClientOptions {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "zkpush-" + uuid.NewString()[:8]
	}
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})
	return opts
}

// DialMQTT 连接 broker；首次连接失败直接返回错误
func DialMQTT(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := pahomqtt.NewClient(buildMQTTOptions(cfg, logger))
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}
	return newMQTTSink(client, cfg), nil
}

func newMQTTSink(client publisher, cfg config.MQTTConfig) *MQTTSink {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "zkpush"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = mqttDefaultTimeout
	}
	return &MQTTSink{client: client, prefix: prefix, qos: byte(cfg.QoS), timeout: timeout}
}

func (m *MQTTSink) Name() string { return "mqtt" }

// Topic 设备事件主题
func (m *MQTTSink) Topic(serial string) string {
	return fmt.Sprintf("%s/%s/events", m.prefix, serial)
}

func (m *MQTTSink) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	token := m.client.Publish(m.Topic(n.Serial), m.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(m.timeout):
		return fmt.Errorf("mqtt publish timeout after %v", m.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTTSink) Close() {
	if m != nil && m.client != nil {
		m.client.Disconnect(mqttDisconnectQuiesce)
	}
}
