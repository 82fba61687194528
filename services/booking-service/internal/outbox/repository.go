package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx and by pgxmock.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Insert stores events inside the caller's transaction.
func Insert(ctx context.Context, tx Execer, events ...Event) error {
	for _, evt := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, evt.Traceparent, evt.Tracestate, evt.CreatedAt)
		if err != nil {
			return fmt.Errorf("outbox: insert %s: %w", evt.EventType, err)
		}
	}
	return nil
}

// PostgresBatcher claims unpublished rows with FOR UPDATE SKIP LOCKED so
// several publisher replicas never ship the same row concurrently.
type PostgresBatcher struct {
	db TxBeginner
}

func NewPostgresBatcher(db TxBeginner) *PostgresBatcher {
	return &PostgresBatcher{db: db}
}

func (b *PostgresBatcher) ProcessBatch(ctx context.Context, limit int, fn func(context.Context, []Event) error) (int, error) {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT event_id::text, aggregate_type, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox: fetch: %w", err)
	}
	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.Traceparent, &e.Tracestate, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("outbox: scan: %w", err)
		}
		events = append(events, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox: fetch: %w", err)
	}
	if len(events) == 0 {
		return 0, tx.Commit(ctx)
	}

	if err := fn(ctx, events); err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE event_id = ANY($1::uuid[])
	`, ids); err != nil {
		return 0, fmt.Errorf("outbox: mark published: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(events), nil
}
