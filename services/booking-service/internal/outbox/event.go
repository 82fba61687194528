package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	otelx "github.com/md-rashed-zaman/apptbook/libs/otel"
)

const AggregateAppointment = "appointment"

// Event is one row of the transactional outbox. It is written in the same
// transaction as the state change it describes.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// NewEvent serializes payload and captures the caller's trace context so the
// publisher can continue the trace when it ships the event.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any, now time.Time) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("outbox: marshal %s: %w", eventType, err)
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return Event{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		CreatedAt:     now,
	}, nil
}
