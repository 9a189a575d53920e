package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	QoS      byte          `yaml:"qos"`
	Retained bool          `yaml:"retained"`
	Timeout  time.Duration `yaml:"timeout"`
}

func (c *MQTTConfig) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "frostline/readings"
	}
	if c.ClientID == "" {
		c.ClientID = "frostline-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// publisher is the slice of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every reading as JSON on one topic.
type MQTTSink struct {
	client publisher
	cfg    MQTTConfig
}

// DialMQTT connects to the broker with auto-reconnect enabled.
func DialMQTT(cfg MQTTConfig) (*MQTTSink, error) {
	cfg.ApplyDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout)
	c := mqtt.NewClient(opts)

	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt sink: connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt sink: connect to %s: %w", cfg.Broker, err)
	}
	return newMQTTSink(c, cfg), nil
}

func newMQTTSink(c publisher, cfg MQTTConfig) *MQTTSink {
	cfg.ApplyDefaults()
	return &MQTTSink{client: c, cfg: cfg}
}

func (m *MQTTSink) Name() string { return "mqtt" }

func (m *MQTTSink) WriteBatch(readings []*domain.SensorReading) error {
	for _, r := range readings {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("mqtt sink: marshal: %w", err)
		}
		tok := m.client.Publish(m.cfg.Topic, m.cfg.QoS, m.cfg.Retained, payload)
		if !tok.WaitTimeout(m.cfg.Timeout) {
			return fmt.Errorf("mqtt sink: publish reading %d timed out", r.Seq)
		}
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt sink: publish reading %d: %w", r.Seq, err)
		}
	}
	return nil
}

func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}

var _ ports.Sink = (*MQTTSink)(nil)
