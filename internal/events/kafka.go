package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"utilbill-backend/internal/config"
	"utilbill-backend/internal/logger"
)

func parseRequiredAcks(v string) (sarama.RequiredAcks, error) {
	switch strings.ToLower(v) {
	case "none", "no_response":
		return sarama.NoResponse, nil
	case "leader", "local", "wait_for_local", "1":
		return sarama.WaitForLocal, nil
	case "all", "wait_for_all", "-1":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForAll, fmt.Errorf("invalid kafka required_acks: %s", v)
	}
}

// KafkaPublisher writes events to a single topic, keyed by bill number so
// every event of one bill lands on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher dials the configured brokers with a synchronous producer
func NewKafkaPublisher(cfg config.EventsConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = cfg.ClientID

	acks, err := parseRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}
	saramaConfig.Producer.RequiredAcks = acks
	saramaConfig.Producer.Retry.Max = cfg.RetryMax
	saramaConfig.Producer.Retry.Backoff = 250 * time.Millisecond
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.BillNumber),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
	}

	logger.ExternalServiceCall("kafka", "SendMessage", "topic", p.topic, "type", event.Type, "billNumber", event.BillNumber)
	partition, offset, err := p.producer.SendMessage(msg)
	logger.ExternalServiceResult("kafka", "SendMessage", err, "partition", partition, "offset", offset)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
