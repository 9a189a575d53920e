package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/frostline/internal/domain"
	"github.com/ghalamif/frostline/internal/ports"
)

type KafkaConfig struct {
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *KafkaConfig) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "frostline.readings"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes one message per reading, keyed by source so a freezer's
// readings stay ordered within a partition.
type KafkaSink struct {
	w       messageWriter
	timeout time.Duration
}

func NewKafkaSink(cfg KafkaConfig) *KafkaSink {
	cfg.ApplyDefaults()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 5 * time.Millisecond,
	}
	return &KafkaSink{w: w, timeout: cfg.Timeout}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) WriteBatch(readings []*domain.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(readings))
	for _, r := range readings {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("kafka sink: marshal: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.SourceID), Value: b, Time: r.Timestamp})
	}

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka sink: %w", err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.w.Close()
}

var _ ports.Sink = (*KafkaSink)(nil)
