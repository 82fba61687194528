package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

var _ notify.Store = (*Repository)(nil)

// Apply claims eventID in inbox_events and writes the notifications in the
// same transaction, so a redelivered event never produces duplicates.
func (r *Repository) Apply(ctx context.Context, eventID, eventType string, ns []notify.Notification) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("storage: record inbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, n := range ns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (user_id, type, title, message, appointment_id, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		`, n.UserID, n.Type, n.Title, n.Message, n.AppointmentID, n.CreatedAt); err != nil {
			return false, fmt.Errorf("storage: insert notification: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("storage: commit: %w", err)
	}
	return true, nil
}

func (r *Repository) List(ctx context.Context, userID string, limit, offset int) ([]notify.Notification, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count notifications: %w", err)
	}
	rows, err := r.db.Query(ctx, `
		SELECT id::text, user_id, type, title, message, COALESCE(appointment_id, ''), read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list notifications: %w", err)
	}
	defer rows.Close()

	out := []notify.Notification{}
	for rows.Next() {
		var n notify.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.AppointmentID, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("storage: list notifications: %w", err)
	}
	return out, total, nil
}

func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: unread count: %w", err)
	}
	return n, nil
}

func (r *Repository) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notify.ErrNotFound
	}
	var found string
	err := r.db.QueryRow(ctx, `
		UPDATE notifications SET read = true
		WHERE id = $1 AND user_id = $2
		RETURNING id::text
	`, id, userID).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: mark read: %w", err)
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, fmt.Errorf("storage: mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
