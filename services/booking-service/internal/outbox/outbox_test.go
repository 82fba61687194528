package outbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/libs/kafkax"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNewEventMarshalsPayload(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	evt, err := NewEvent(context.Background(), AggregateAppointment, "appt-1", "booking.appointment.created.v1",
		map[string]string{"appointment_id": "appt-1"}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
	assert.JSONEq(t, `{"appointment_id":"appt-1"}`, string(evt.Payload))
	assert.Equal(t, now, evt.CreatedAt)

	_, err = NewEvent(context.Background(), AggregateAppointment, "appt-1", "x", make(chan int), now)
	assert.Error(t, err)
}

func TestInsertWritesEachEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	e1 := Event{ID: "e1", AggregateType: AggregateAppointment, AggregateID: "a1", EventType: "t1", Payload: []byte(`{}`)}
	e2 := Event{ID: "e2", AggregateType: AggregateAppointment, AggregateID: "a1", EventType: "t2", Payload: []byte(`{}`)}
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("e1", AggregateAppointment, "a1", "t1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("e2", AggregateAppointment, "a1", "t2", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err = Insert(context.Background(), mock, e1, e2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outbox: insert t2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func outboxRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"})
}

func TestPostgresBatcherMarksPublishedOnSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT event_id").WithArgs(10).WillReturnRows(outboxRows().
		AddRow("e1", AggregateAppointment, "a1", "booking.appointment.created.v1", []byte(`{}`), "", "", now).
		AddRow("e2", AggregateAppointment, "a2", "booking.appointment.created.v1", []byte(`{}`), "", "", now))
	mock.ExpectExec("UPDATE outbox_events").WithArgs([]string{"e1", "e2"}).WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	var shipped []string
	n, err := NewPostgresBatcher(mock).ProcessBatch(context.Background(), 10, func(_ context.Context, events []Event) error {
		for _, e := range events {
			shipped = append(shipped, e.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, shipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBatcherRollsBackOnSinkError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT event_id").WithArgs(5).WillReturnRows(outboxRows().
		AddRow("e1", AggregateAppointment, "a1", "t", []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	_, err = NewPostgresBatcher(mock).ProcessBatch(context.Background(), 5, func(context.Context, []Event) error {
		return errors.New("broker down")
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeBatcher struct {
	mu        sync.Mutex
	pending   []Event
	published []Event
}

func (f *fakeBatcher) remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeBatcher) ProcessBatch(ctx context.Context, limit int, fn func(context.Context, []Event) error) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := min(limit, len(f.pending))
	batch := f.pending[:n]
	if n == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	f.published = append(f.published, batch...)
	f.pending = f.pending[n:]
	return n, nil
}

type recordingSink struct {
	fail  bool
	calls int
}

func (s *recordingSink) Publish(context.Context, []Event) error {
	s.calls++
	if s.fail {
		return errors.New("unavailable")
	}
	return nil
}

type countingMetrics struct{ published, failed int }

func (m *countingMetrics) OutboxPublished(n int) { m.published += n }
func (m *countingMetrics) OutboxFailed()         { m.failed++ }

func TestPublishOnce(t *testing.T) {
	b := &fakeBatcher{pending: []Event{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	sink := &recordingSink{}
	metrics := &countingMetrics{}
	p := NewPublisher(b, sink, testLogger(), metrics, PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.PublishOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, b.published, 3)
	assert.Equal(t, 3, metrics.published)

	sink.fail = true
	b.pending = []Event{{ID: "4"}}
	_, err = p.PublishOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, metrics.failed)
	assert.Len(t, b.pending, 1, "failed events stay pending")
}

func TestPublisherRunStopsOnCancel(t *testing.T) {
	b := &fakeBatcher{pending: []Event{{ID: "1"}}}
	p := NewPublisher(b, NewLogSink(testLogger()), testLogger(), nil, PublisherConfig{PollEvery: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.remaining() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
}

func TestMessageCarriesMeta(t *testing.T) {
	msg := Message(context.Background(), Event{ID: "e1", AggregateID: "appt-1", EventType: "booking.appointment.confirmed.v1", Payload: []byte(`{}`)})
	assert.Equal(t, "booking.appointment.confirmed.v1", msg.Topic)
	assert.Equal(t, []byte("appt-1"), msg.Key)
	meta := kafkax.ExtractEventMeta(msg)
	assert.Equal(t, "e1", meta.EventID)
	assert.Equal(t, "appt-1", meta.AggregateID)
}
