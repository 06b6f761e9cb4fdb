package repository

import (
	"context"
	"errors"
	"time"

	"ewastePickup/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

// UserRepositoryI defines operations on User entities.
type UserRepositoryI interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	UpdateProfile(ctx context.Context, u *models.User) error
}

// RequestMutator applies a transition to a private copy of a request.
// Returning an error aborts the update with nothing written.
type RequestMutator func(r *models.PickupRequest) error

// RequestRepositoryI defines operations on PickupRequest entities.
type RequestRepositoryI interface {
	Create(ctx context.Context, ownerID int64, p models.Payload, at time.Time) (*models.PickupRequest, error)
	Get(ctx context.Context, id int64) (*models.PickupRequest, error)
	ListAll(ctx context.Context) ([]models.PickupRequest, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.PickupRequest, error)
	ListByCollector(ctx context.Context, collectorID int64) ([]models.PickupRequest, error)
	Update(ctx context.Context, id int64, mutate RequestMutator) (*models.PickupRequest, error)
}

// RatingRepositoryI defines operations on ServiceRating entities.
type RatingRepositoryI interface {
	Upsert(ctx context.Context, r *models.ServiceRating) (*models.ServiceRating, error)
	GetByRequest(ctx context.Context, requestID int64) (*models.ServiceRating, error)
}
