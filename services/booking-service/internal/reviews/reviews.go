// Package reviews holds customer feedback on completed appointments and
// customers' favorite businesses.
package reviews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type Store interface {
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	GetBusiness(ctx context.Context, id string) (model.Business, error)

	// CreateReview returns model.ErrAlreadyReviewed when the appointment has one.
	CreateReview(ctx context.Context, r model.Review) (model.Review, error)
	UpdateReview(ctx context.Context, r model.Review) (model.Review, error)
	DeleteReview(ctx context.Context, id string) error
	GetReview(ctx context.Context, id string) (model.Review, error)
	ListReviewsByBusiness(ctx context.Context, businessID string, limit, offset int) ([]model.Review, int, error)
	ListReviewsByCustomer(ctx context.Context, customerID string) ([]model.Review, error)

	// AddFavorite and RemoveFavorite are idempotent.
	AddFavorite(ctx context.Context, f model.Favorite) error
	RemoveFavorite(ctx context.Context, customerID, businessID string) error
	ListFavorites(ctx context.Context, customerID string) ([]model.Business, error)
	IsFavorite(ctx context.Context, customerID, businessID string) (bool, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type ReviewInput struct {
	AppointmentID string `json:"appointmentId"`
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
}

func validRating(r int) error {
	if r < 1 || r > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", model.ErrValidation)
	}
	return nil
}

// Create reviews one of the customer's COMPLETED appointments. Each
// appointment takes at most one review.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in ReviewInput) (model.Review, error) {
	if !actor.Is(auth.RoleCustomer) {
		return model.Review{}, model.ErrUnauthorized
	}
	if err := validRating(in.Rating); err != nil {
		return model.Review{}, err
	}
	appt, err := s.store.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		return model.Review{}, err
	}
	if appt.CustomerID != actor.UserID {
		return model.Review{}, model.ErrUnauthorized
	}
	if appt.Status != model.StatusCompleted {
		return model.Review{}, fmt.Errorf("%w: only completed appointments can be reviewed", model.ErrInvalidTransition)
	}
	now := s.now()
	return s.store.CreateReview(ctx, model.Review{
		AppointmentID: appt.ID,
		CustomerID:    actor.UserID,
		BusinessID:    appt.BusinessID,
		EmployeeID:    appt.EmployeeID,
		Rating:        in.Rating,
		Comment:       strings.TrimSpace(in.Comment),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in ReviewInput) (model.Review, error) {
	r, err := s.own(ctx, actor, id)
	if err != nil {
		return model.Review{}, err
	}
	if err := validRating(in.Rating); err != nil {
		return model.Review{}, err
	}
	r.Rating = in.Rating
	r.Comment = strings.TrimSpace(in.Comment)
	r.UpdatedAt = s.now()
	return s.store.UpdateReview(ctx, r)
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if _, err := s.own(ctx, actor, id); err != nil {
		return err
	}
	return s.store.DeleteReview(ctx, id)
}

func (s *Service) ForBusiness(ctx context.Context, businessID string, page, size int) ([]model.Review, int, error) {
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return nil, 0, err
	}
	return s.store.ListReviewsByBusiness(ctx, businessID, size, page*size)
}

func (s *Service) Mine(ctx context.Context, actor auth.Actor) ([]model.Review, error) {
	return s.store.ListReviewsByCustomer(ctx, actor.UserID)
}

func (s *Service) own(ctx context.Context, actor auth.Actor, id string) (model.Review, error) {
	r, err := s.store.GetReview(ctx, id)
	if err != nil {
		return model.Review{}, err
	}
	if r.CustomerID != actor.UserID {
		return model.Review{}, model.ErrUnauthorized
	}
	return r, nil
}

func (s *Service) AddFavorite(ctx context.Context, actor auth.Actor, businessID string) error {
	if !actor.Is(auth.RoleCustomer) {
		return model.ErrUnauthorized
	}
	if _, err := s.store.GetBusiness(ctx, businessID); err != nil {
		return err
	}
	return s.store.AddFavorite(ctx, model.Favorite{CustomerID: actor.UserID, BusinessID: businessID, CreatedAt: s.now()})
}

func (s *Service) RemoveFavorite(ctx context.Context, actor auth.Actor, businessID string) error {
	return s.store.RemoveFavorite(ctx, actor.UserID, businessID)
}

func (s *Service) Favorites(ctx context.Context, actor auth.Actor) ([]model.Business, error) {
	return s.store.ListFavorites(ctx, actor.UserID)
}

func (s *Service) IsFavorite(ctx context.Context, actor auth.Actor, businessID string) (bool, error) {
	return s.store.IsFavorite(ctx, actor.UserID, businessID)
}
