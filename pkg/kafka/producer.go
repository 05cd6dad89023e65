// Package kafka publishes graph change events so downstream catalogs can
// follow the aggregated metadata without polling the query API.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string `env:"KAFKA_BROKERS" delimiter:","`
	Topic        string   `env:"KAFKA_TOPIC" default:"fern.graph-changes"`
	BatchSize    int      `env:"KAFKA_BATCH_SIZE" default:"100"`
	BatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" default:"100"`
	RequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" default:"-1"`
	Compression  string   `env:"KAFKA_COMPRESSION" default:"snappy"`
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           time.Duration(cfg.BatchTimeout) * time.Millisecond,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// GraphEvent describes one change to the aggregated graph. OrdID is the
// message key so all changes to one entity land on the same partition.
type GraphEvent struct {
	EventType  string          `json:"event_type"`
	TenantID   string          `json:"tenant_id"`
	OrdID      string          `json:"ord_id"`
	Kind       string          `json:"kind"`
	ProviderID string          `json:"provider_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// CrawlEvent describes the outcome of one crawl run.
type CrawlEvent struct {
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	ProviderID string    `json:"provider_id"`
	CrawlID    string    `json:"crawl_id"`
	Documents  int       `json:"documents"`
	Entities   int       `json:"entities"`
	Errors     int       `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

// PublishGraphEvent publishes a single graph change event.
func (p *Producer) PublishGraphEvent(ctx context.Context, event *GraphEvent) error {
	return p.PublishGraphEvents(ctx, []*GraphEvent{event})
}

// PublishGraphEvents publishes a batch of graph change events.
func (p *Producer) PublishGraphEvents(ctx context.Context, events []*GraphEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishGraphEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.OrdID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "tenant_id", Value: []byte(event.TenantID)},
				{Key: "kind", Value: []byte(event.Kind)},
				{Key: "traceparent", Value: []byte(tracing.GetTraceParent(ctx))},
			},
		}
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish graph events")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published graph events")

	return nil
}

// PublishCrawlEvent publishes a crawl outcome event keyed by provider.
func (p *Producer) PublishCrawlEvent(ctx context.Context, event *CrawlEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCrawlEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ProviderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordKafkaPublish(p.topic, "error", time.Since(start).Seconds())
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish crawl event")
		return err
	}
	metrics.RecordKafkaPublish(p.topic, "success", time.Since(start).Seconds())

	return nil
}
