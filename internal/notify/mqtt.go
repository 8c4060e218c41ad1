// Package notify fans out created events to external consumers.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/metrics"
	"github.com/yogesh43221/SentinelSight-AI-Video-Analytics/internal/model"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher publishes events and camera status to an MQTT broker.
// Publishing is best effort: a broker outage is logged and counted, never
// propagated to the pipeline.
type MQTTPublisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	metrics *metrics.Metrics
}

// eventPayload is the wire format for event messages.
type eventPayload struct {
	EventID    int64          `json:"event_id"`
	CameraID   int64          `json:"camera_id"`
	Timestamp  time.Time      `json:"timestamp"`
	RuleType   string         `json:"rule_type"`
	ObjectType string         `json:"object_type"`
	Confidence float64        `json:"confidence"`
	Priority   string         `json:"priority"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewMQTTPublisher connects to the broker. The connection auto-reconnects;
// messages published while disconnected are dropped.
func NewMQTTPublisher(cfg MQTTConfig, m *metrics.Metrics) (*MQTTPublisher, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("[MQTT] Connected to broker %s", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] Connection lost: %v", err)
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "sentinelsight"
	}
	return &MQTTPublisher{client: cli, prefix: prefix, qos: cfg.QoS, metrics: m}, nil
}

// PublishEvent publishes an event on {prefix}/events/{camera_id}/{rule_type}.
func (p *MQTTPublisher) PublishEvent(e *model.Event) {
	if !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(eventPayload{
		EventID:    e.ID,
		CameraID:   e.CameraID,
		Timestamp:  e.Timestamp,
		RuleType:   e.RuleType,
		ObjectType: e.ObjectType,
		Confidence: e.Confidence,
		Priority:   e.Priority,
		Status:     e.Status,
		Metadata:   e.Metadata,
	})
	if err != nil {
		log.Printf("[MQTT] Failed to encode event %d: %v", e.ID, err)
		p.metrics.IncNotifyErrors()
		return
	}

	topic := fmt.Sprintf("%s/events/%d/%s", p.prefix, e.CameraID, e.RuleType)
	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("[MQTT] Failed to publish event %d: %v", e.ID, err)
		p.metrics.IncNotifyErrors()
	}
}

// PublishCameraStatus publishes a status update on {prefix}/status/{camera_id}.
func (p *MQTTPublisher) PublishCameraStatus(cameraID int64, status model.CameraStatus, fps float64) {
	if !p.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"camera_id": cameraID,
		"status":    status,
		"fps":       fps,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return
	}

	topic := fmt.Sprintf("%s/status/%d", p.prefix, cameraID)
	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("[MQTT] Failed to publish camera %d status: %v", cameraID, err)
		p.metrics.IncNotifyErrors()
	}
}

// IsConnected reports the broker connection state.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Printf("[MQTT] Disconnected from broker")
	}
}
