// Package settlement delivers settlement events to the configured sink.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/segmentio/kafka-go"
)

var (
	_ ports.SettlementPublisher = (*KafkaPublisher)(nil)
	_ ports.SettlementPublisher = (*HTTPNotifier)(nil)
	_ ports.SettlementPublisher = (*LogSink)(nil)
)

const eventType = "settlement.transaction.v1"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes settlement events to a topic keyed by wallet id, so
// one wallet's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a synchronous writer that waits for all in-sync replicas.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: false,
		},
		topic: topic,
	}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish returns "<topic>/<event id>" as the settlement reference.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.SettlementEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal settlement event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.WalletID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "business_id", Value: []byte(event.BusinessID)},
		},
		Time: event.OccurredAt,
	})
	if err != nil {
		return "", fmt.Errorf("publish settlement event: %w", err)
	}
	return p.topic + "/" + event.EventID, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
