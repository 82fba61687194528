package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/apptbook/libs/db"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/reviews"
)

const reviewColumns = `id::text, appointment_id::text, customer_id, business_id::text, employee_id::text,
	rating, comment, created_at, updated_at`

func scanReview(row pgx.Row) (model.Review, error) {
	var r model.Review
	err := row.Scan(&r.ID, &r.AppointmentID, &r.CustomerID, &r.BusinessID, &r.EmployeeID,
		&r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (p *Postgres) CreateReview(ctx context.Context, r model.Review) (model.Review, error) {
	err := p.db.QueryRow(ctx, `
		INSERT INTO reviews (appointment_id, customer_id, business_id, employee_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, r.AppointmentID, r.CustomerID, r.BusinessID, r.EmployeeID, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt).Scan(&r.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Review{}, model.ErrAlreadyReviewed
		}
		return model.Review{}, fmt.Errorf("storage: create review: %w", err)
	}
	return r, nil
}

func (p *Postgres) UpdateReview(ctx context.Context, r model.Review) (model.Review, error) {
	tag, err := p.db.Exec(ctx, `
		UPDATE reviews SET rating = $2, comment = $3, updated_at = $4 WHERE id = $1
	`, r.ID, r.Rating, r.Comment, r.UpdatedAt)
	if err != nil {
		return model.Review{}, fmt.Errorf("storage: update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Review{}, model.ErrNotFound
	}
	return r, nil
}

func (p *Postgres) DeleteReview(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	tag, err := p.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) GetReview(ctx context.Context, id string) (model.Review, error) {
	if !validID(id) {
		return model.Review{}, model.ErrNotFound
	}
	r, err := scanReview(p.db.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		return model.Review{}, wrapGet("review", err, model.ErrNotFound)
	}
	return r, nil
}

func (p *Postgres) ListReviewsByBusiness(ctx context.Context, businessID string, limit, offset int) ([]model.Review, int, error) {
	var total int
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM reviews WHERE business_id = $1`, businessID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count reviews: %w", err)
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, businessID, limit, max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list reviews: %w", err)
	}
	out, err := collect(rows, scanReview)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *Postgres) ListReviewsByCustomer(ctx context.Context, customerID string) ([]model.Review, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list reviews: %w", err)
	}
	return collect(rows, scanReview)
}

func (p *Postgres) AddFavorite(ctx context.Context, f model.Favorite) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO favorites (customer_id, business_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, business_id) DO NOTHING
	`, f.CustomerID, f.BusinessID, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("storage: add favorite: %w", err)
	}
	return nil
}

func (p *Postgres) RemoveFavorite(ctx context.Context, customerID, businessID string) error {
	if !validID(businessID) {
		return nil
	}
	if _, err := p.db.Exec(ctx, `DELETE FROM favorites WHERE customer_id = $1 AND business_id = $2`, customerID, businessID); err != nil {
		return fmt.Errorf("storage: remove favorite: %w", err)
	}
	return nil
}

func (p *Postgres) ListFavorites(ctx context.Context, customerID string) ([]model.Business, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+businessColumns+`
		FROM businesses
		WHERE id IN (SELECT business_id FROM favorites WHERE customer_id = $1)
		ORDER BY name ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list favorites: %w", err)
	}
	return collect(rows, scanBusiness)
}

func (p *Postgres) IsFavorite(ctx context.Context, customerID, businessID string) (bool, error) {
	if !validID(businessID) {
		return false, nil
	}
	var ok bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM favorites WHERE customer_id = $1 AND business_id = $2)
	`, customerID, businessID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("storage: check favorite: %w", err)
	}
	return ok, nil
}

var _ reviews.Store = (*Postgres)(nil)
