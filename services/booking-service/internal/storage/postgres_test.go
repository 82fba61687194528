package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

const (
	empID  = "5f0c7f57-6d5b-4a4e-9b53-0d5a0f3c1a11"
	bizID  = "0b8d8a55-2c1e-4a43-8f0e-9d0f3d2c6b22"
	svcID  = "c1d2e3f4-1111-4a43-8f0e-9d0f3d2c6b33"
	apptID = "9a7b6c5d-2222-4a43-8f0e-9d0f3d2c6b44"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// anyArgs matches n positional arguments whose values the test does not pin.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func appointmentRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "customer_id", "business_id", "service_id", "employee_id", "appointment_date", "end_time",
		"duration_minutes", "status", "owner_approved", "employee_approved", "notes", "version", "created_at", "updated_at",
	})
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(empID).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.LockEmployee(ctx, empID)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewPostgres(mock).InTx(context.Background(), func(context.Context, booking.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointmentMapsExclusionViolation(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2030, 1, 28, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("cust-1", bizID, svcID, empID, start, start.Add(time.Hour), 60, "PENDING",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectRollback()

	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		_, err := tx.InsertAppointment(ctx, model.Appointment{
			CustomerID: "cust-1", BusinessID: bizID, ServiceID: svcID, EmployeeID: empID,
			AppointmentDate: start, EndTime: start.Add(time.Hour), DurationMinutes: 60, Status: model.StatusPending,
		})
		return err
	})
	require.ErrorIs(t, err, model.ErrSlotUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAppointmentReturnsIDAndVersion(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2030, 1, 28, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(13)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version"}).AddRow(apptID, int64(1)))
	mock.ExpectCommit()

	var got model.Appointment
	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		var err error
		got, err = tx.InsertAppointment(ctx, model.Appointment{
			CustomerID: "cust-1", BusinessID: bizID, ServiceID: svcID, EmployeeID: empID,
			AppointmentDate: start, EndTime: start.Add(time.Hour), DurationMinutes: 60, Status: model.StatusPending,
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, apptID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAppointmentDetectsStaleVersion(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(apptID, int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), "CONFIRMED",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"version"}))
	mock.ExpectRollback()

	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		_, err := tx.UpdateAppointment(ctx, model.Appointment{ID: apptID, Version: 3, Status: model.StatusConfirmed})
		return err
	})
	require.ErrorIs(t, err, model.ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAppointmentScansRow(t *testing.T) {
	mock := newMock(t)
	start := time.Date(2030, 1, 28, 10, 0, 0, 0, time.UTC)
	yes := true
	mock.ExpectQuery("SELECT (.+) FROM appointments WHERE id").WithArgs(apptID).WillReturnRows(appointmentRows().AddRow(
		apptID, "cust-1", bizID, svcID, empID, start, start.Add(time.Hour), 60, model.StatusPending,
		&yes, (*bool)(nil), "", int64(2), start, start,
	))

	appt, err := NewPostgres(mock).GetAppointment(context.Background(), apptID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, appt.Status)
	require.NotNil(t, appt.OwnerApproved)
	assert.True(t, *appt.OwnerApproved)
	assert.Nil(t, appt.EmployeeApproved)
	assert.Equal(t, start.Add(time.Hour), appt.EndTime)
}

func TestGetAppointmentNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM appointments").WithArgs(apptID).WillReturnRows(appointmentRows())

	_, err := NewPostgres(mock).GetAppointment(context.Background(), apptID)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = NewPostgres(mock).GetAppointment(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkingHours(t *testing.T) {
	cols := []string{"active", "start_minute", "end_minute", "is_available"}
	start, end, avail := 540, 1020, true

	t.Run("unknown employee", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("FROM employees").WithArgs(empID, int(time.Monday)).WillReturnRows(pgxmock.NewRows(cols))
		_, _, err := NewPostgres(mock).WorkingHours(context.Background(), empID, time.Monday)
		require.ErrorIs(t, err, model.ErrEmployeeNotFound)
	})

	t.Run("no record for weekday", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("FROM employees").WithArgs(empID, int(time.Sunday)).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(true, (*int)(nil), (*int)(nil), (*bool)(nil)))
		_, ok, err := NewPostgres(mock).WorkingHours(context.Background(), empID, time.Sunday)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("working day", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery("FROM employees").WithArgs(empID, int(time.Monday)).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(true, &start, &end, &avail))
		h, ok, err := NewPostgres(mock).WorkingHours(context.Background(), empID, time.Monday)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 540, h.StartMinute)
		assert.Equal(t, 1020, h.EndMinute)
		assert.True(t, h.IsAvailable)
	})

	t.Run("malformed id never queries", func(t *testing.T) {
		mock := newMock(t)
		_, _, err := NewPostgres(mock).WorkingHours(context.Background(), "emp-1", time.Monday)
		require.ErrorIs(t, err, model.ErrEmployeeNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBusyIntervalsInsideTxLocksRows(t *testing.T) {
	mock := newMock(t)
	from := time.Date(2030, 1, 28, 9, 0, 0, 0, time.UTC)
	to := from.Add(8 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("status <> 'CANCELLED'(.+)FOR SHARE").WithArgs(empID, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_date", "end_time"}).
			AddRow(apptID, from.Add(time.Hour), from.Add(2*time.Hour)))
	mock.ExpectCommit()

	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		busy, err := tx.BusyIntervals(ctx, empID, from, to)
		if err != nil {
			return err
		}
		require.Len(t, busy, 1)
		assert.Equal(t, apptID, busy[0].ID)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimIdempotencyKey(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointment_idempotency_keys").WithArgs("cust-1", "key-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("FROM appointment_idempotency_keys").WithArgs("cust-1", "key-1").
		WillReturnRows(pgxmock.NewRows([]string{"appointment_id"}).AddRow(apptID))
	mock.ExpectCommit()

	var existing string
	err := NewPostgres(mock).InTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		var err error
		existing, err = tx.ClaimIdempotencyKey(ctx, "cust-1", "key-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, apptID, existing)
}

func TestCreateBusinessConflictPerOwner(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO businesses").
		WithArgs(append([]any{"owner-1", "Salon"}, anyArgs(10)...)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := NewPostgres(mock).CreateBusiness(context.Background(), model.Business{OwnerID: "owner-1", Name: "Salon"})
	require.ErrorIs(t, err, model.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateEmployeeWritesScheduleInOneTx(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO employees").
		WithArgs(append([]any{bizID, "", "Ana"}, anyArgs(7)...)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(empID))
	for range 7 {
		mock.ExpectExec("INSERT INTO working_hours").
			WithArgs(append([]any{empID}, anyArgs(4)...)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	emp, err := NewPostgres(mock).CreateEmployee(context.Background(),
		model.Employee{BusinessID: bizID, Name: "Ana", Active: true}, model.DefaultWeek(""))
	require.NoError(t, err)
	assert.Equal(t, empID, emp.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateServiceMissing(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("UPDATE services").
		WithArgs(append([]any{svcID}, anyArgs(6)...)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := NewPostgres(mock).UpdateService(context.Background(), model.Service{ID: svcID})
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReviewDuplicate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("INSERT INTO reviews").
		WithArgs(append([]any{apptID}, anyArgs(7)...)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := NewPostgres(mock).CreateReview(context.Background(), model.Review{AppointmentID: apptID, Rating: 5})
	require.ErrorIs(t, err, model.ErrAlreadyReviewed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppointmentsBuildsFilter(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("SELECT count(.+) WHERE customer_id = \\$1 AND status = \\$2").
		WithArgs("cust-1", "PENDING").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("LIMIT \\$3 OFFSET \\$4").
		WithArgs("cust-1", "PENDING", 20, 40).
		WillReturnRows(appointmentRows())

	appts, total, err := NewPostgres(mock).ListAppointments(context.Background(), model.AppointmentFilter{
		CustomerID: "cust-1", Status: model.StatusPending, Limit: 20, Offset: 40,
	})
	require.NoError(t, err)
	assert.Empty(t, appts)
	assert.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
