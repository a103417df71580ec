package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/segmentio/kafka-go"

	"mini-rpa/internal/orchestrator/events"
	"mini-rpa/pkg/config"
)

// MessageReader is the part of *kafka.Reader the consumer loop needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// NewConsumer returns a group reader on the dispatch event topic.
func NewConsumer(cfg config.KafkaConfig) (*kafka.Reader, error) {
	brokers := cfg.BrokerList()
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured (set " + config.EnvPrefix + "_KAFKA_BROKERS)")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	hlog.Infof("Kafka consumer configured for topic: %s, groupID: %s", cfg.Topic, cfg.GroupID)
	return reader, nil
}

// Consume reads DispatchEvents until ctx is done or the reader is closed.
// Messages that do not decode are logged and skipped.
func Consume(ctx context.Context, r MessageReader, handle func(events.DispatchEvent)) error {
	for {
		msg, err := r.ReadMessage(ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, io.EOF):
			hlog.Infof("Kafka reader closed, stopping consumption.")
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			hlog.Warnf("error reading dispatch event: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var ev events.DispatchEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			hlog.Warnf("skipping undecodable dispatch event at partition %d offset %d: %v", msg.Partition, msg.Offset, err)
			continue
		}
		handle(ev)
	}
}
