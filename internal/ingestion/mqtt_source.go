package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/karthiksai109/healthguard/internal/config"
	"github.com/karthiksai109/healthguard/internal/models"
)

// vitalMessage MQTT 上报的体征读数载荷
type vitalMessage struct {
	MetricType string  `json:"metric_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit,omitempty"`
}

// MQTTSource 体征 MQTT 摄取源
// 订阅 healthguard/vitals/<patient_id>，每条消息摄取为一个 vital 条目入队
type MQTTSource struct {
	client   mqtt.Client
	topic    string
	qos      byte
	ingestor *Ingestor
	push     func(models.IngestedItem) bool
	logger   *zap.Logger
}

// NewMQTTSource 创建体征 MQTT 摄取源并连接 broker
func NewMQTTSource(cfg *config.Config, ingestor *Ingestor, push func(models.IngestedItem) bool, logger *zap.Logger) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTSource{
		client:   client,
		topic:    cfg.MQTT.Topic,
		qos:      cfg.MQTT.QoS,
		ingestor: ingestor,
		push:     push,
		logger:   logger,
	}, nil
}

// Start 订阅体征主题
func (s *MQTTSource) Start() error {
	token := s.client.Subscribe(s.topic, s.qos, func(client mqtt.Client, msg mqtt.Message) {
		if err := s.handleMessage(msg.Topic(), msg.Payload()); err != nil {
			// 记录错误，但不中断订阅
			s.logger.Warn("failed to handle vital message",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", s.topic, token.Error())
	}

	s.logger.Info("mqtt vital source started", zap.String("topic", s.topic))
	return nil
}

// Stop 断开 MQTT 连接
func (s *MQTTSource) Stop() {
	s.client.Disconnect(250)
	s.logger.Info("mqtt vital source stopped")
}

// handleMessage 解析单条体征消息并入队
// 主题末段是患者标识：healthguard/vitals/<patient_id>
func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	patientID := patientIDFromTopic(topic)
	if patientID == "" {
		return fmt.Errorf("topic %s carries no patient id", topic)
	}

	var msg vitalMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("invalid vital payload: %w", err)
	}
	if msg.MetricType == "" {
		return fmt.Errorf("vital payload missing metric_type")
	}

	item := s.ingestor.IngestVital(patientID, msg.MetricType, msg.Value, msg.Unit)
	if !s.push(item) {
		return fmt.Errorf("event queue full, vital dropped")
	}
	return nil
}

func patientIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}
