// Package catalog manages what can be booked: businesses, their services,
// employees and weekly working hours.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type Store interface {
	CreateBusiness(ctx context.Context, b model.Business) (model.Business, error)
	UpdateBusiness(ctx context.Context, b model.Business) (model.Business, error)
	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (model.Business, error)
	ListBusinesses(ctx context.Context, f model.BusinessFilter) ([]model.Business, int, error)

	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	UpdateService(ctx context.Context, s model.Service) (model.Service, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	ListServices(ctx context.Context, businessID string) ([]model.Service, error)

	CreateEmployee(ctx context.Context, e model.Employee, week []model.WorkingHours) (model.Employee, error)
	UpdateEmployee(ctx context.Context, e model.Employee) (model.Employee, error)
	GetEmployee(ctx context.Context, id string) (model.Employee, error)
	ListEmployees(ctx context.Context, businessID string) ([]model.Employee, error)
	// AcceptInvitation links userID to the employee holding token and burns the token.
	AcceptInvitation(ctx context.Context, token, userID string) (model.Employee, error)

	GetSchedule(ctx context.Context, employeeID string) ([]model.WorkingHours, error)
	ReplaceSchedule(ctx context.Context, employeeID string, week []model.WorkingHours) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type BusinessInput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	BusinessType string `json:"businessType"`
	Address      string `json:"address"`
	City         string `json:"city"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	ImageURL     string `json:"imageUrl"`
}

func (in BusinessInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	return validEmail(in.Email)
}

func (in BusinessInput) apply(b *model.Business) {
	b.Name = strings.TrimSpace(in.Name)
	b.Description = in.Description
	b.Category = strings.TrimSpace(in.Category)
	b.BusinessType = strings.TrimSpace(in.BusinessType)
	b.Address = in.Address
	b.City = strings.TrimSpace(in.City)
	b.Phone = in.Phone
	b.Email = strings.TrimSpace(in.Email)
	b.ImageURL = in.ImageURL
}

// CreateBusiness registers the owner's business. An owner has at most one.
func (s *Service) CreateBusiness(ctx context.Context, actor auth.Actor, in BusinessInput) (model.Business, error) {
	if !actor.Is(auth.RoleBusinessOwner) {
		return model.Business{}, model.ErrUnauthorized
	}
	if err := in.validate(); err != nil {
		return model.Business{}, err
	}
	now := s.now()
	b := model.Business{OwnerID: actor.UserID, CreatedAt: now, UpdatedAt: now}
	in.apply(&b)
	created, err := s.store.CreateBusiness(ctx, b)
	if err != nil {
		return model.Business{}, err
	}
	s.logger.InfoContext(ctx, "business created", "business_id", created.ID, "owner_id", actor.UserID)
	return created, nil
}

func (s *Service) UpdateBusiness(ctx context.Context, actor auth.Actor, id string, in BusinessInput) (model.Business, error) {
	b, err := s.owned(ctx, actor, id)
	if err != nil {
		return model.Business{}, err
	}
	if err := in.validate(); err != nil {
		return model.Business{}, err
	}
	in.apply(&b)
	b.UpdatedAt = s.now()
	return s.store.UpdateBusiness(ctx, b)
}

// MyBusiness returns model.ErrNotFound when the owner has not created one yet.
func (s *Service) MyBusiness(ctx context.Context, actor auth.Actor) (model.Business, error) {
	return s.store.GetBusinessByOwner(ctx, actor.UserID)
}

func (s *Service) GetBusiness(ctx context.Context, id string) (model.Business, error) {
	return s.store.GetBusiness(ctx, id)
}

func (s *Service) ListBusinesses(ctx context.Context, f model.BusinessFilter) ([]model.Business, int, error) {
	return s.store.ListBusinesses(ctx, f)
}

type ServiceInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Duration    int     `json:"duration"`
	Price       float64 `json:"price"`
}

func (in ServiceInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if in.Duration <= 0 {
		return model.ErrInvalidDuration
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	return nil
}

func (s *Service) CreateService(ctx context.Context, actor auth.Actor, businessID string, in ServiceInput) (model.Service, error) {
	if _, err := s.owned(ctx, actor, businessID); err != nil {
		return model.Service{}, err
	}
	if err := in.validate(); err != nil {
		return model.Service{}, err
	}
	now := s.now()
	return s.store.CreateService(ctx, model.Service{
		BusinessID:      businessID,
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		DurationMinutes: in.Duration,
		Price:           in.Price,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// UpdateService changes duration or price; existing appointments keep the
// duration they were booked with.
func (s *Service) UpdateService(ctx context.Context, actor auth.Actor, businessID, serviceID string, in ServiceInput) (model.Service, error) {
	svc, err := s.ownedService(ctx, actor, businessID, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if err := in.validate(); err != nil {
		return model.Service{}, err
	}
	svc.Name = strings.TrimSpace(in.Name)
	svc.Description = in.Description
	svc.DurationMinutes = in.Duration
	svc.Price = in.Price
	svc.UpdatedAt = s.now()
	return s.store.UpdateService(ctx, svc)
}

// DeleteService retires the service; it stays referenced by past appointments.
func (s *Service) DeleteService(ctx context.Context, actor auth.Actor, businessID, serviceID string) error {
	svc, err := s.ownedService(ctx, actor, businessID, serviceID)
	if err != nil {
		return err
	}
	svc.Active = false
	svc.UpdatedAt = s.now()
	_, err = s.store.UpdateService(ctx, svc)
	return err
}

func (s *Service) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	svc, err := s.store.GetService(ctx, serviceID)
	if err != nil {
		return model.Service{}, err
	}
	if svc.BusinessID != businessID || !svc.Active {
		return model.Service{}, model.ErrNotFound
	}
	return svc, nil
}

func (s *Service) ListServices(ctx context.Context, businessID string) ([]model.Service, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return s.store.ListServices(ctx, businessID)
}

type EmployeeInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}

func (in EmployeeInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	return validEmail(in.Email)
}

// CreateEmployee adds a bookable employee with the default weekly schedule and
// an invitation token the staff member uses to link their account.
func (s *Service) CreateEmployee(ctx context.Context, actor auth.Actor, businessID string, in EmployeeInput) (model.Employee, error) {
	if _, err := s.owned(ctx, actor, businessID); err != nil {
		return model.Employee{}, err
	}
	if err := in.validate(); err != nil {
		return model.Employee{}, err
	}
	now := s.now()
	emp, err := s.store.CreateEmployee(ctx, model.Employee{
		BusinessID:      businessID,
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.TrimSpace(in.Email),
		Phone:           in.Phone,
		Specialization:  in.Specialization,
		InvitationToken: uuid.NewString(),
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, model.DefaultWeek(""))
	if err != nil {
		return model.Employee{}, err
	}
	s.logger.InfoContext(ctx, "employee invited", "business_id", businessID, "employee_id", emp.ID)
	return emp, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, actor auth.Actor, businessID, employeeID string, in EmployeeInput) (model.Employee, error) {
	emp, err := s.ownedEmployee(ctx, actor, businessID, employeeID)
	if err != nil {
		return model.Employee{}, err
	}
	if err := in.validate(); err != nil {
		return model.Employee{}, err
	}
	emp.Name = strings.TrimSpace(in.Name)
	emp.Email = strings.TrimSpace(in.Email)
	emp.Phone = in.Phone
	emp.Specialization = in.Specialization
	emp.UpdatedAt = s.now()
	return s.store.UpdateEmployee(ctx, emp)
}

// DeleteEmployee deactivates the employee; they stop being bookable but their
// appointments remain.
func (s *Service) DeleteEmployee(ctx context.Context, actor auth.Actor, businessID, employeeID string) error {
	emp, err := s.ownedEmployee(ctx, actor, businessID, employeeID)
	if err != nil {
		return err
	}
	emp.Active = false
	emp.UpdatedAt = s.now()
	_, err = s.store.UpdateEmployee(ctx, emp)
	return err
}

func (s *Service) GetEmployee(ctx context.Context, businessID, employeeID string) (model.Employee, error) {
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return model.Employee{}, err
	}
	if emp.BusinessID != businessID || !emp.Active {
		return model.Employee{}, model.ErrEmployeeNotFound
	}
	return emp, nil
}

func (s *Service) ListEmployees(ctx context.Context, businessID string) ([]model.Employee, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	return s.store.ListEmployees(ctx, businessID)
}

// InvitationToken returns the token of an employee who has not yet linked an
// account, for the owner to pass on.
func (s *Service) InvitationToken(ctx context.Context, actor auth.Actor, businessID, employeeID string) (string, error) {
	emp, err := s.ownedEmployee(ctx, actor, businessID, employeeID)
	if err != nil {
		return "", err
	}
	if emp.UserID != "" || emp.InvitationToken == "" {
		return "", fmt.Errorf("%w: invitation already accepted", model.ErrConflict)
	}
	return emp.InvitationToken, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, actor auth.Actor, token string) (model.Employee, error) {
	if !actor.Is(auth.RoleStaff) {
		return model.Employee{}, model.ErrUnauthorized
	}
	if strings.TrimSpace(token) == "" {
		return model.Employee{}, model.ErrNotFound
	}
	emp, err := s.store.AcceptInvitation(ctx, token, actor.UserID)
	if err != nil {
		return model.Employee{}, err
	}
	s.logger.InfoContext(ctx, "invitation accepted", "employee_id", emp.ID, "user_id", actor.UserID)
	return emp, nil
}

func (s *Service) GetSchedule(ctx context.Context, employeeID string) ([]model.WorkingHours, error) {
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.store.GetSchedule(ctx, employeeID)
}

// SetSchedule replaces the weekly schedule. Days left out become days off.
// Existing appointments are not touched.
func (s *Service) SetSchedule(ctx context.Context, actor auth.Actor, businessID, employeeID string, week []model.WorkingHours) ([]model.WorkingHours, error) {
	if _, err := s.ownedEmployee(ctx, actor, businessID, employeeID); err != nil {
		return nil, err
	}
	seen := map[time.Weekday]bool{}
	normalized := make([]model.WorkingHours, 0, 7)
	for _, h := range week {
		if !h.Valid() {
			return nil, fmt.Errorf("%w: invalid hours for %s", model.ErrValidation, h.DayOfWeek)
		}
		if seen[h.DayOfWeek] {
			return nil, fmt.Errorf("%w: %s listed twice", model.ErrValidation, h.DayOfWeek)
		}
		seen[h.DayOfWeek] = true
		h.EmployeeID = employeeID
		normalized = append(normalized, h)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !seen[d] {
			normalized = append(normalized, model.WorkingHours{EmployeeID: employeeID, DayOfWeek: d})
		}
	}
	if err := s.store.ReplaceSchedule(ctx, employeeID, normalized); err != nil {
		return nil, err
	}
	return s.store.GetSchedule(ctx, employeeID)
}

func (s *Service) owned(ctx context.Context, actor auth.Actor, businessID string) (model.Business, error) {
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return model.Business{}, err
	}
	if b.OwnerID != actor.UserID {
		return model.Business{}, model.ErrUnauthorized
	}
	return b, nil
}

func (s *Service) ownedService(ctx context.Context, actor auth.Actor, businessID, serviceID string) (model.Service, error) {
	if _, err := s.owned(ctx, actor, businessID); err != nil {
		return model.Service{}, err
	}
	return s.GetService(ctx, businessID, serviceID)
}

func (s *Service) ownedEmployee(ctx context.Context, actor auth.Actor, businessID, employeeID string) (model.Employee, error) {
	if _, err := s.owned(ctx, actor, businessID); err != nil {
		return model.Employee{}, err
	}
	return s.GetEmployee(ctx, businessID, employeeID)
}

func validEmail(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if _, err := mail.ParseAddress(v); err != nil {
		return fmt.Errorf("%w: invalid email", model.ErrValidation)
	}
	return nil
}
