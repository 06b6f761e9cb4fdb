package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	dbpkg "ewastePickup/internal/db"
	"ewastePickup/models"
)

type RatingRepository struct {
	db *sqlx.DB
}

func NewRatingRepository(db *sql.DB) *RatingRepository {
	return &RatingRepository{db: sqlx.NewDb(db, dbpkg.DriverName)}
}

// Upsert stores the rating for its request, replacing score and comment if one exists.
func (r *RatingRepository) Upsert(ctx context.Context, rt *models.ServiceRating) (*models.ServiceRating, error) {
	if rt == nil {
		return nil, errors.New("rating is nil")
	}
	now := rt.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO service_ratings (request_id, user_id, rating, comment, created_at, updated_at)
VALUES (?,?,?,?,?,?)
ON CONFLICT(request_id) DO UPDATE SET rating = excluded.rating, comment = excluded.comment, updated_at = excluded.updated_at`,
		rt.RequestID, rt.UserID, rt.Rating, rt.Comment, now, now)
	if err != nil {
		return nil, err
	}
	return r.GetByRequest(ctx, rt.RequestID)
}

// GetByRequest returns nil, nil when the request has not been rated.
func (r *RatingRepository) GetByRequest(ctx context.Context, requestID int64) (*models.ServiceRating, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var rt models.ServiceRating
	err := r.db.GetContext(ctx, &rt, `SELECT id, request_id, user_id, rating, comment, created_at, updated_at FROM service_ratings WHERE request_id = ?`, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rt, nil
}
