// Package users owns accounts: registration, password login and the caller's
// own profile. Tokens are issued by the token package; this package only
// decides who the caller is.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation failed")
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Store interface {
	// CreateUser returns ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, u User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateProfile(ctx context.Context, u User) (User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	cost   int
	now    func() time.Time
}

// NewService builds the account service. cost is the bcrypt work factor;
// zero means bcrypt.DefaultCost.
func NewService(store Store, logger *slog.Logger, cost int, now func() time.Time) *Service {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, logger: logger, cost: cost, now: now}
}

type RegisterInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return User{}, fmt.Errorf("%w: fullName is required", ErrValidation)
	}
	role, err := parseRole(in.Role)
	if err != nil {
		return User{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}

	now := s.now().UTC()
	u, err := s.store.CreateUser(ctx, User{
		Email:        email,
		FullName:     name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return User{}, err
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login returns ErrInvalidCredentials for both an unknown email and a wrong
// password.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, actor auth.Actor) (User, error) {
	return s.store.GetUser(ctx, actor.UserID)
}

type ProfileInput struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
}

// UpdateProfile changes only the fields present in the request.
func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, in ProfileInput) (User, error) {
	u, err := s.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return User{}, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return User{}, fmt.Errorf("%w: fullName cannot be empty", ErrValidation)
		}
		u.FullName = name
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	u.UpdatedAt = s.now().UTC()
	return s.store.UpdateProfile(ctx, u)
}

type PasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Service) ChangePassword(ctx context.Context, actor auth.Actor, in PasswordInput) error {
	u, err := s.store.GetUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, u.ID, hash, s.now().UTC()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", u.ID)
	return nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return "", fmt.Errorf("%w: password must be %d to %d characters", ErrValidation, minPasswordLength, maxPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	return email, nil
}

// parseRole defaults to CUSTOMER. Staff accounts register as STAFF and are
// linked to an employee record by accepting an invitation.
func parseRole(raw string) (string, error) {
	switch role := strings.ToUpper(strings.TrimSpace(raw)); role {
	case "":
		return auth.RoleCustomer, nil
	case auth.RoleCustomer, auth.RoleBusinessOwner, auth.RoleStaff:
		return role, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
	}
}
