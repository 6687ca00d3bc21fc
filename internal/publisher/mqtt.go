package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/config"
	"github.com/EricMovillaSanolivar/ai-fall-prevent/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// publishTimeout 单次发布等待确认的上限
const publishTimeout = 5 * time.Second

// RiskMessage 一帧风险事件的 MQTT 消息体
type RiskMessage struct {
	CameraID  string             `json:"camera_id"`
	Timestamp int64              `json:"timestamp"`
	Events    []models.RiskEvent `json:"events"`
}

// tokenPublisher paho Client 中发布所需的部分
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher 将风险事件发布到 {prefix}/{camera_id}/risk
type MQTTPublisher struct {
	client tokenPublisher
	conn   mqtt.Client
	prefix string
	qos    byte
	logger *zap.Logger
}

// NewMQTTPublisher 连接 Broker 并创建发布器
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	p := newPublisher(client, cfg.TopicPrefix, cfg.QoS, logger)
	p.conn = client
	return p, nil
}

func newPublisher(client tokenPublisher, prefix string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: strings.Trim(prefix, "/"),
		qos:    qos,
		logger: logger,
	}
}

// Topic 风险事件主题
func (p *MQTTPublisher) Topic(cameraID string) string {
	if p.prefix == "" {
		return fmt.Sprintf("%s/risk", cameraID)
	}
	return fmt.Sprintf("%s/%s/risk", p.prefix, cameraID)
}

// PublishRisk 发布一帧的风险事件；无事件时不发布
func (p *MQTTPublisher) PublishRisk(ctx context.Context, cameraID string, events []models.RiskEvent) error {
	if len(events) == 0 {
		return nil
	}

	payload, err := json.Marshal(RiskMessage{
		CameraID:  cameraID,
		Timestamp: time.Now().Unix(),
		Events:    events,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal risk message: %w", err)
	}

	topic := p.Topic(cameraID)
	token := p.client.Publish(topic, p.qos, false, payload)

	wait := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < wait {
			wait = d
		}
	}
	if !token.WaitTimeout(wait) {
		return fmt.Errorf("publish to topic %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	p.logger.Debug("Risk events published",
		zap.String("topic", topic),
		zap.Int("events", len(events)),
	)
	return nil
}

// Close 断开连接
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
