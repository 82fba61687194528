package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
)

func TestApplyWritesInboxAndNotifications(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2030, 1, 28, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").WithArgs("evt-1", notify.EventCreated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").WithArgs("owner-1", notify.EventCreated, "t", "m", "appt-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").WithArgs("cust-1", notify.EventCreated, "t", "m", "appt-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ok, err := NewRepository(mock).Apply(context.Background(), "evt-1", notify.EventCreated, []notify.Notification{
		{UserID: "owner-1", Type: notify.EventCreated, Title: "t", Message: "m", AppointmentID: "appt-1", CreatedAt: now},
		{UserID: "cust-1", Type: notify.EventCreated, Title: "t", Message: "m", AppointmentID: "appt-1", CreatedAt: now},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySkipsDuplicateEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").WithArgs("evt-1", notify.EventCreated).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	ok, err := NewRepository(mock).Apply(context.Background(), "evt-1", notify.EventCreated, []notify.Notification{{UserID: "u"}})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRollsBackOnInsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO inbox_events").WithArgs("evt-2", notify.EventConfirmed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs("u", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err = NewRepository(mock).Apply(context.Background(), "evt-2", notify.EventConfirmed, []notify.Notification{{UserID: "u"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPaged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT count").WithArgs("u1").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT id::text").WithArgs("u1", 2, 0).WillReturnRows(
		pgxmock.NewRows([]string{"id", "user_id", "type", "title", "message", "appointment_id", "read", "created_at"}).
			AddRow("n1", "u1", notify.EventConfirmed, "Appointment confirmed", "m", "a1", false, now).
			AddRow("n2", "u1", notify.EventCreated, "Booking received", "m", "a1", true, now.Add(-time.Hour)))

	items, total, err := NewRepository(mock).List(context.Background(), "u1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "n1", items[0].ID)
	assert.True(t, items[1].Read)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := "6f1c2a8e-3b7d-4c1e-9f00-1a2b3c4d5e6f"
	repo := NewRepository(mock)

	mock.ExpectQuery("UPDATE notifications SET read").WithArgs(id, "u1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	require.NoError(t, repo.MarkRead(context.Background(), "u1", id))

	mock.ExpectQuery("UPDATE notifications SET read").WithArgs(id, "u2").WillReturnError(pgx.ErrNoRows)
	assert.ErrorIs(t, repo.MarkRead(context.Background(), "u2", id), notify.ErrNotFound)

	assert.ErrorIs(t, repo.MarkRead(context.Background(), "u1", "not-a-uuid"), notify.ErrNotFound)

	mock.ExpectExec("UPDATE notifications SET read = true WHERE user_id").WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))
	n, err := repo.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
