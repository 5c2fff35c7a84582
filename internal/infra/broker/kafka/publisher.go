package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"homedesk/internal/domain/chat"
)

// Publisher pushes chat domain events to the platform's broker so other
// services (notifications, analytics) can react. Events are keyed by
// conversation ID, keeping one thread's events in one partition.
type Publisher struct {
	sync   sarama.SyncProducer
	topic  string
	logger *slog.Logger
}

func NewPublisher(brokers []string, topicPrefix string, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 3
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.Return.Successes = true
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Publisher{sync: sync, topic: topicPrefix + "chat.events", logger: logger}, nil
}

type eventRecord struct {
	Event          string          `json:"event"`
	ConversationID string          `json:"conversation_id"`
	OccurredAt     int64           `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload"`
}

// Publish encodes and sends one event.
func (p *Publisher) Publish(ctx context.Context, event chat.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	record, err := json.Marshal(eventRecord{
		Event:          event.EventName(),
		ConversationID: event.AggregateID(),
		OccurredAt:     event.OccurredAt().UnixMilli(),
		Payload:        payload,
	})
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.AggregateID()),
		Value: sarama.ByteEncoder(record),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(event.EventName())},
		},
	}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Debug("event published", "event", event.EventName(), "partition", partition, "offset", offset)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.sync == nil {
		return nil
	}
	return p.sync.Close()
}
