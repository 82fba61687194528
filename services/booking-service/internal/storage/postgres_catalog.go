package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

const businessColumns = `id::text, owner_id, name, description, category, business_type, address, city,
	phone, email, image_url, created_at, updated_at`

func scanBusiness(row pgx.Row) (model.Business, error) {
	var b model.Business
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.Category, &b.BusinessType,
		&b.Address, &b.City, &b.Phone, &b.Email, &b.ImageURL, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const serviceColumns = `id::text, business_id::text, name, description, duration_minutes, price::float8,
	active, created_at, updated_at`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.BusinessID, &s.Name, &s.Description, &s.DurationMinutes, &s.Price,
		&s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const employeeColumns = `id::text, business_id::text, COALESCE(user_id, ''), name, email, phone, specialization,
	COALESCE(invitation_token, ''), active, created_at, updated_at`

func scanEmployee(row pgx.Row) (model.Employee, error) {
	var e model.Employee
	err := row.Scan(&e.ID, &e.BusinessID, &e.UserID, &e.Name, &e.Email, &e.Phone, &e.Specialization,
		&e.InvitationToken, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func getBusiness(ctx context.Context, q queryer, id string) (model.Business, error) {
	if !validID(id) {
		return model.Business{}, model.ErrNotFound
	}
	b, err := scanBusiness(q.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id))
	if err != nil {
		return model.Business{}, wrapGet("business", err, model.ErrNotFound)
	}
	return b, nil
}

func getService(ctx context.Context, q queryer, id string) (model.Service, error) {
	if !validID(id) {
		return model.Service{}, model.ErrNotFound
	}
	s, err := scanService(q.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		return model.Service{}, wrapGet("service", err, model.ErrNotFound)
	}
	return s, nil
}

func getEmployee(ctx context.Context, q queryer, id string) (model.Employee, error) {
	if !validID(id) {
		return model.Employee{}, model.ErrEmployeeNotFound
	}
	e, err := scanEmployee(q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		return model.Employee{}, wrapGet("employee", err, model.ErrEmployeeNotFound)
	}
	return e, nil
}

func wrapGet(what string, err, sentinel error) error {
	if db.IsNotFound(err) {
		return sentinel
	}
	return fmt.Errorf("storage: get %s: %w", what, err)
}

// --- businesses ---

func (p *Postgres) CreateBusiness(ctx context.Context, b model.Business) (model.Business, error) {
	err := p.db.QueryRow(ctx, `
		INSERT INTO businesses
			(owner_id, name, description, category, business_type, address, city, phone, email, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id::text
	`, b.OwnerID, b.Name, b.Description, b.Category, b.BusinessType, b.Address, b.City, b.Phone, b.Email,
		b.ImageURL, b.CreatedAt, b.UpdatedAt).Scan(&b.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Business{}, fmt.Errorf("%w: owner already has a business", model.ErrConflict)
		}
		return model.Business{}, fmt.Errorf("storage: create business: %w", err)
	}
	return b, nil
}

func (p *Postgres) UpdateBusiness(ctx context.Context, b model.Business) (model.Business, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE businesses
		SET name = $2, description = $3, category = $4, business_type = $5, address = $6, city = $7,
			phone = $8, email = $9, image_url = $10, updated_at = $11
		WHERE id = $1
	`, b.ID, b.Name, b.Description, b.Category, b.BusinessType, b.Address, b.City, b.Phone, b.Email,
		b.ImageURL, b.UpdatedAt)
	if err != nil {
		return model.Business{}, fmt.Errorf("storage: update business: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Business{}, model.ErrNotFound
	}
	return b, nil
}

func (p *Postgres) GetBusinessByOwner(ctx context.Context, ownerID string) (model.Business, error) {
	b, err := scanBusiness(p.db.QueryRow(ctx, `SELECT `+businessColumns+` FROM businesses WHERE owner_id = $1`, ownerID))
	if err != nil {
		return model.Business{}, wrapGet("business", err, model.ErrNotFound)
	}
	return b, nil
}

func (p *Postgres) ListBusinesses(ctx context.Context, f model.BusinessFilter) ([]model.Business, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Name != "" {
		add("name ILIKE '%%' || $%d || '%%'", f.Name)
	}
	if f.City != "" {
		add("lower(city) = lower($%d)", f.City)
	}
	if f.Category != "" {
		add("lower(category) = lower($%d)", f.Category)
	}
	if f.BusinessType != "" {
		add("lower(business_type) = lower($%d)", f.BusinessType)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM businesses `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count businesses: %w", err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, max(f.Offset, 0))
	rows, err := p.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM businesses %s
		ORDER BY name ASC, id ASC
		LIMIT $%d OFFSET $%d
	`, businessColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list businesses: %w", err)
	}
	out, err := collect(rows, scanBusiness)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// --- services ---

func (p *Postgres) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	err := p.db.QueryRow(ctx, `
		INSERT INTO services (business_id, name, description, duration_minutes, price, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, s.BusinessID, s.Name, s.Description, s.DurationMinutes, s.Price, s.Active, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return model.Service{}, model.ErrNotFound
		}
		return model.Service{}, fmt.Errorf("storage: create service: %w", err)
	}
	return s, nil
}

func (p *Postgres) UpdateService(ctx context.Context, s model.Service) (model.Service, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE services
		SET name = $2, description = $3, duration_minutes = $4, price = $5, active = $6, updated_at = $7
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.DurationMinutes, s.Price, s.Active, s.UpdatedAt)
	if err != nil {
		return model.Service{}, fmt.Errorf("storage: update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Service{}, model.ErrNotFound
	}
	return s, nil
}

func (p *Postgres) GetService(ctx context.Context, id string) (model.Service, error) {
	return getService(ctx, p.db, id)
}

func (p *Postgres) ListServices(ctx context.Context, businessID string) ([]model.Service, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE business_id = $1 AND active
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("storage: list services: %w", err)
	}
	return collect(rows, scanService)
}

// --- employees and schedules ---

// CreateEmployee inserts the employee and its weekly schedule atomically.
func (p *Postgres) CreateEmployee(ctx context.Context, e model.Employee, week []model.WorkingHours) (model.Employee, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return model.Employee{}, fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO employees
			(business_id, user_id, name, email, phone, specialization, invitation_token, active, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		RETURNING id::text
	`, e.BusinessID, e.UserID, e.Name, e.Email, e.Phone, e.Specialization, e.InvitationToken, e.Active,
		e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return model.Employee{}, model.ErrNotFound
		}
		return model.Employee{}, fmt.Errorf("storage: create employee: %w", err)
	}
	if err := insertHours(ctx, tx, e.ID, week); err != nil {
		return model.Employee{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Employee{}, fmt.Errorf("storage: commit: %w", err)
	}
	return e, nil
}

func (p *Postgres) UpdateEmployee(ctx context.Context, e model.Employee) (model.Employee, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE employees
		SET name = $2, email = $3, phone = $4, specialization = $5, active = $6, updated_at = $7
		WHERE id = $1
	`, e.ID, e.Name, e.Email, e.Phone, e.Specialization, e.Active, e.UpdatedAt)
	if err != nil {
		return model.Employee{}, fmt.Errorf("storage: update employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Employee{}, model.ErrEmployeeNotFound
	}
	return e, nil
}

func (p *Postgres) GetEmployeeByUser(ctx context.Context, userID string) (model.Employee, error) {
	e, err := scanEmployee(p.db.QueryRow(ctx, `
		SELECT `+employeeColumns+` FROM employees WHERE user_id = $1 AND active
	`, userID))
	if err != nil {
		return model.Employee{}, wrapGet("employee", err, model.ErrEmployeeNotFound)
	}
	return e, nil
}

func (p *Postgres) ListEmployees(ctx context.Context, businessID string) ([]model.Employee, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE business_id = $1 AND active
		ORDER BY name ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("storage: list employees: %w", err)
	}
	return collect(rows, scanEmployee)
}

func (p *Postgres) AcceptInvitation(ctx context.Context, token, userID string) (model.Employee, error) {
	e, err := scanEmployee(p.db.QueryRow(ctx, `
		UPDATE employees
		SET user_id = $2, invitation_token = NULL, updated_at = now()
		WHERE invitation_token = $1
		RETURNING `+employeeColumns, token, userID))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Employee{}, fmt.Errorf("%w: user is already linked to an employee", model.ErrConflict)
		}
		return model.Employee{}, wrapGet("invitation", err, model.ErrNotFound)
	}
	return e, nil
}

func (p *Postgres) GetSchedule(ctx context.Context, employeeID string) ([]model.WorkingHours, error) {
	if !validID(employeeID) {
		return nil, model.ErrEmployeeNotFound
	}
	rows, err := p.db.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute, is_available
		FROM working_hours
		WHERE employee_id = $1
		ORDER BY day_of_week ASC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("storage: get schedule: %w", err)
	}
	return collect(rows, func(row pgx.Row) (model.WorkingHours, error) {
		h := model.WorkingHours{EmployeeID: employeeID}
		var day int
		err := row.Scan(&day, &h.StartMinute, &h.EndMinute, &h.IsAvailable)
		h.DayOfWeek = time.Weekday(day)
		return h, err
	})
}

func (p *Postgres) ReplaceSchedule(ctx context.Context, employeeID string, week []model.WorkingHours) error {
	if !validID(employeeID) {
		return model.ErrEmployeeNotFound
	}
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM working_hours WHERE employee_id = $1`, employeeID); err != nil {
		return fmt.Errorf("storage: clear schedule: %w", err)
	}
	if err := insertHours(ctx, tx, employeeID, week); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func insertHours(ctx context.Context, tx pgx.Tx, employeeID string, week []model.WorkingHours) error {
	for _, h := range week {
		_, err := tx.Exec(ctx, `
			INSERT INTO working_hours (employee_id, day_of_week, start_minute, end_minute, is_available)
			VALUES ($1, $2, $3, $4, $5)
		`, employeeID, int(h.DayOfWeek), h.StartMinute, h.EndMinute, h.IsAvailable)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return model.ErrEmployeeNotFound
			}
			return fmt.Errorf("storage: insert hours: %w", err)
		}
	}
	return nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate: %w", err)
	}
	return out, nil
}

var _ catalog.Store = (*Postgres)(nil)
