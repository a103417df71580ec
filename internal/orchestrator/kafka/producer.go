package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"

	"mini-rpa/internal/orchestrator/events"
	"mini-rpa/pkg/config"
)

const writeTimeout = 10 * time.Second

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewProducer returns a writer for the dispatch event topic, or nil when no
// brokers are configured.
func NewProducer(cfg config.KafkaConfig) *kafka.Writer {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil
	}
	producer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: int(kafka.RequireOne),
		Async:        false,
	})
	hlog.Infof("Kafka producer configured for topic: %s", cfg.Topic)
	return producer
}

// Publisher sends DispatchEvents keyed by task name, so the events of one task
// stay ordered within a partition.
type Publisher struct {
	w MessageWriter
}

func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{w: w}
}

func (p *Publisher) Publish(ctx context.Context, ev events.DispatchEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal dispatch event %s: %w", ev.DispatchID, err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(writeCtx, kafka.Message{Key: []byte(ev.TaskName), Value: value}); err != nil {
		return fmt.Errorf("send dispatch event %s to kafka: %w", ev.DispatchID, err)
	}
	return nil
}
