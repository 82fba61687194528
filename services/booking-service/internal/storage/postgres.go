package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// DB is the subset of *pgxpool.Pool the store uses; pgxmock pools satisfy it.
type DB interface {
	queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db DB
}

func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

const appointmentColumns = `id::text, customer_id, business_id::text, service_id::text, employee_id::text,
	appointment_date, end_time, duration_minutes, status, owner_approved, employee_approved,
	notes, version, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.CustomerID,
		&a.BusinessID,
		&a.ServiceID,
		&a.EmployeeID,
		&a.AppointmentDate,
		&a.EndTime,
		&a.DurationMinutes,
		&a.Status,
		&a.OwnerApproved,
		&a.EmployeeApproved,
		&a.Notes,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// validID keeps malformed ids from reaching uuid columns, where Postgres
// would answer with a syntax error instead of no rows.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFoundAs(err, sentinel error) error {
	if db.IsNotFound(err) {
		return sentinel
	}
	return err
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (p *Postgres) WorkingHours(ctx context.Context, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return workingHours(ctx, p.db, employeeID, day)
}

func (p *Postgres) BusyIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]availability.Interval, error) {
	return busyIntervals(ctx, p.db, employeeID, from, to, false)
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, p.db, id, false)
}

func (p *Postgres) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.BusinessID != "" {
		add("business_id = $%d", f.BusinessID)
	}
	if f.EmployeeID != "" {
		add("employee_id = $%d", f.EmployeeID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("appointment_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("appointment_date < $%d", f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM appointments `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count appointments: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(f.Offset, 0))
	rows, err := p.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM appointments %s
		ORDER BY appointment_date ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, appointmentColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list appointments: %w", err)
	}
	appts, err := collect(rows, scanAppointment)
	if err != nil {
		return nil, 0, err
	}
	return appts, total, nil
}

func (p *Postgres) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	return getBusiness(ctx, p.db, id)
}

func (p *Postgres) GetEmployee(ctx context.Context, id string) (model.Employee, error) {
	return getEmployee(ctx, p.db, id)
}

// --- transaction handle ---

type pgTx struct {
	tx pgx.Tx
}

// LockEmployee takes a transaction-scoped advisory lock keyed by employee, so
// concurrent bookings for the same employee run their check and insert one
// at a time while other employees proceed in parallel.
func (t *pgTx) LockEmployee(ctx context.Context, employeeID string) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, employeeID); err != nil {
		return fmt.Errorf("storage: lock employee: %w", err)
	}
	return nil
}

func (t *pgTx) WorkingHours(ctx context.Context, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	return workingHours(ctx, t.tx, employeeID, day)
}

func (t *pgTx) BusyIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]availability.Interval, error) {
	return busyIntervals(ctx, t.tx, employeeID, from, to, true)
}

func (t *pgTx) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	return getBusiness(ctx, t.tx, id)
}

func (t *pgTx) GetService(ctx context.Context, id string) (model.Service, error) {
	return getService(ctx, t.tx, id)
}

func (t *pgTx) GetEmployee(ctx context.Context, id string) (model.Employee, error) {
	return getEmployee(ctx, t.tx, id)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(customer_id, business_id, service_id, employee_id, appointment_date, end_time, duration_minutes,
			 status, owner_approved, employee_approved, notes, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
		RETURNING id::text, version
	`, appt.CustomerID, appt.BusinessID, appt.ServiceID, appt.EmployeeID, appt.AppointmentDate.UTC(), appt.EndTime.UTC(),
		appt.DurationMinutes, string(appt.Status), appt.OwnerApproved, appt.EmployeeApproved, appt.Notes,
		appt.CreatedAt, appt.UpdatedAt).Scan(&appt.ID, &appt.Version)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return model.Appointment{}, model.ErrSlotUnavailable
		}
		return model.Appointment{}, fmt.Errorf("storage: insert appointment: %w", err)
	}
	return appt, nil
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $3,
			end_time = $4,
			status = $5,
			owner_approved = $6,
			employee_approved = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`, appt.ID, appt.Version, appt.AppointmentDate.UTC(), appt.EndTime.UTC(), string(appt.Status),
		appt.OwnerApproved, appt.EmployeeApproved, appt.UpdatedAt).Scan(&appt.Version)
	switch {
	case err == nil:
		return appt, nil
	case db.IsNotFound(err):
		return model.Appointment{}, model.ErrStaleVersion
	case db.IsExclusionViolation(err):
		return model.Appointment{}, model.ErrSlotUnavailable
	default:
		return model.Appointment{}, fmt.Errorf("storage: update appointment: %w", err)
	}
}

func (t *pgTx) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'CONFIRMED' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list due: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, customerID, key string) (string, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_idempotency_keys (customer_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (customer_id, idempotency_key) DO NOTHING
	`, customerID, key)
	if err != nil {
		return "", fmt.Errorf("storage: claim idempotency key: %w", err)
	}
	var apptID string
	err = t.tx.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM appointment_idempotency_keys
		WHERE customer_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, customerID, key).Scan(&apptID)
	if err != nil {
		return "", fmt.Errorf("storage: read idempotency key: %w", err)
	}
	return apptID, nil
}

func (t *pgTx) FinalizeIdempotencyKey(ctx context.Context, customerID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE appointment_idempotency_keys
		SET appointment_id = $3
		WHERE customer_id = $1 AND idempotency_key = $2
	`, customerID, key, appointmentID)
	if err != nil {
		return fmt.Errorf("storage: finalize idempotency key: %w", err)
	}
	return nil
}

func (t *pgTx) InsertEvents(ctx context.Context, events ...outbox.Event) error {
	return outbox.Insert(ctx, t.tx, events...)
}

// --- shared queries ---

func workingHours(ctx context.Context, q queryer, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	if !validID(employeeID) {
		return model.WorkingHours{}, false, model.ErrEmployeeNotFound
	}
	var (
		active           bool
		startMin, endMin *int
		isAvailable      *bool
	)
	err := q.QueryRow(ctx, `
		SELECT e.active, w.start_minute, w.end_minute, w.is_available
		FROM employees e
		LEFT JOIN working_hours w ON w.employee_id = e.id AND w.day_of_week = $2
		WHERE e.id = $1
	`, employeeID, int(day)).Scan(&active, &startMin, &endMin, &isAvailable)
	if err != nil {
		return model.WorkingHours{}, false, notFoundAs(err, model.ErrEmployeeNotFound)
	}
	if !active {
		return model.WorkingHours{}, false, model.ErrEmployeeNotFound
	}
	if isAvailable == nil {
		return model.WorkingHours{}, false, nil
	}
	h := model.WorkingHours{EmployeeID: employeeID, DayOfWeek: day, IsAvailable: *isAvailable}
	if startMin != nil && endMin != nil {
		h.StartMinute, h.EndMinute = *startMin, *endMin
	}
	return h, true, nil
}

func busyIntervals(ctx context.Context, q queryer, employeeID string, from, to time.Time, lock bool) ([]availability.Interval, error) {
	if !validID(employeeID) {
		return nil, nil
	}
	sql := `
		SELECT id::text, appointment_date, end_time
		FROM appointments
		WHERE employee_id = $1
			AND status <> 'CANCELLED'
			AND appointment_date < $3
			AND end_time > $2
		ORDER BY appointment_date ASC`
	if lock {
		sql += ` FOR SHARE`
	}
	rows, err := q.Query(ctx, sql, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: busy intervals: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.ID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("storage: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func getAppointment(ctx context.Context, q queryer, id string, forUpdate bool) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, model.ErrNotFound
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, sql, id))
	if err != nil {
		if db.IsNotFound(err) {
			return model.Appointment{}, model.ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("storage: get appointment: %w", err)
	}
	return appt, nil
}

var (
	_ booking.Store = (*Postgres)(nil)
	_ booking.Tx    = (*pgTx)(nil)
)
