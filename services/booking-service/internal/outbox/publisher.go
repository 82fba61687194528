package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
)

// Batcher hands out unpublished events. Events are marked published only when
// fn returns nil; otherwise they are offered again on the next poll.
type Batcher interface {
	ProcessBatch(ctx context.Context, limit int, fn func(context.Context, []Event) error) (int, error)
}

// Sink delivers a batch downstream.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}

type Metrics interface {
	OutboxPublished(n int)
	OutboxFailed()
}

type Publisher struct {
	batcher   Batcher
	sink      Sink
	logger    *slog.Logger
	metrics   Metrics
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(batcher Batcher, sink Sink, logger *slog.Logger, metrics Metrics, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		batcher:   batcher,
		sink:      sink,
		logger:    logger,
		metrics:   metrics,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain full batches before waiting for the next tick.
			for {
				n, err := p.PublishOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("outbox publish failed", "err", err)
					}
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishOnce ships at most one batch and returns how many events went out.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	n, err := p.batcher.ProcessBatch(ctx, p.batchSize, p.sink.Publish)
	if err != nil {
		if p.metrics != nil {
			p.metrics.OutboxFailed()
		}
		return 0, err
	}
	if n > 0 {
		if p.metrics != nil {
			p.metrics.OutboxPublished(n)
		}
		p.logger.Debug("outbox batch published", "count", n)
	}
	return n, nil
}

// KafkaSink writes each event to the topic named by its type, keyed by the
// aggregate id.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(writer *kafka.Writer) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Publish(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msgs = append(msgs, Message(ctx, e))
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Message converts an outbox row to a Kafka message, restoring the trace
// context captured when the row was written.
func Message(ctx context.Context, e Event) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, e.Traceparent, e.Tracestate)
	meta := kafkax.EventMeta{EventID: e.ID, EventType: e.EventType, AggregateID: e.AggregateID}
	return kafka.Message{
		Topic:   e.EventType,
		Key:     []byte(e.AggregateID),
		Value:   e.Payload,
		Headers: kafkax.InjectTraceHeaders(msgCtx, meta.Headers()),
		Time:    e.CreatedAt,
	}
}

// LogSink is used when no brokers are configured: events are logged and
// considered delivered.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info("domain event",
			"event_id", e.ID,
			"event_type", e.EventType,
			"aggregate_id", e.AggregateID,
			"payload", string(e.Payload),
		)
	}
	return nil
}
