package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

const DefaultTopic = "vmarket.indices"

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka emits one message per fresh value, keyed by source ID.
type Kafka struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	brokers := cleanBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Kafka{writer: w, now: time.Now}, nil
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, id string, fields fetcher.Fields) error {
	msg, err := k.message(id, fields)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", id, err)
	}
	return nil
}

func (k *Kafka) message(id string, fields fetcher.Fields) (kafka.Message, error) {
	payload, err := json.Marshal(Update{Source: id, ScrapedAt: k.now().UTC(), Fields: fields})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s: %w", id, err)
	}
	return kafka.Message{Key: []byte(id), Value: payload}, nil
}

func (k *Kafka) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

func cleanBrokers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, b := range raw {
		for _, p := range strings.Split(b, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
