package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler applies one event. It returns false for duplicates.
type EventHandler interface {
	HandleEvent(ctx context.Context, eventID, eventType string, payload []byte) (bool, error)
}

type Config struct {
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	reader      Reader
	logger      *slog.Logger
	handler     EventHandler
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, reader Reader, handler EventHandler, cfg Config) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		logger:      logger,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Run fetches until ctx is cancelled. A message is committed once it has been
// applied, recognised as a duplicate, or found permanently malformed.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process reports false only when ctx was cancelled mid-retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	for attempt := 1; ; attempt++ {
		applied, err := c.handler.HandleEvent(ctxSpan, meta.EventID, meta.EventType, msg.Value)
		switch {
		case err == nil && !applied:
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return true
		case err == nil:
			c.logger.Debug("event applied", "event_id", meta.EventID, "event_type", meta.EventType)
			return true
		case notify.IsPermanent(err):
			c.logger.Error("event skipped", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
			span.RecordError(err)
			return true
		case attempt >= c.maxAttempts:
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID, "attempts", attempt)
			span.RecordError(err)
			return true
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
