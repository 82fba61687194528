package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/users"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ users.Store = (*UserRepository)(nil)

const userColumns = `id::text, email, password_hash, full_name, phone, role, created_at, updated_at`

func scanUser(row pgx.Row) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UserRepository) CreateUser(ctx context.Context, u users.User) (users.User, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text
	`, u.Email, u.PasswordHash, u.FullName, u.Phone, u.Role, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return users.User{}, users.ErrEmailTaken
		}
		return users.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (users.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		if db.IsNotFound(err) {
			return users.User{}, users.ErrNotFound
		}
		return users.User{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetUser(ctx context.Context, id string) (users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return users.User{}, users.ErrNotFound
	}
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return users.User{}, users.ErrNotFound
		}
		return users.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, u users.User) (users.User, error) {
	if _, err := uuid.Parse(u.ID); err != nil {
		return users.User{}, users.ErrNotFound
	}
	out, err := scanUser(r.db.QueryRow(ctx, `
		UPDATE users SET full_name = $2, phone = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns, u.ID, u.FullName, u.Phone, u.UpdatedAt))
	if err != nil {
		if db.IsNotFound(err) {
			return users.User{}, users.ErrNotFound
		}
		return users.User{}, fmt.Errorf("storage: update profile: %w", err)
	}
	return out, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return users.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return fmt.Errorf("storage: update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}
