package lifecycle

import (
	"context"

	"ewastePickup/internal/apperr"
	"ewastePickup/models"
)

// UserLookup is the slice of the user store the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// AssigneeResolver turns a collector id into a live collector principal.
// Unknown ids are not_found; an existing account without the collector role is invalid_assignee.
type AssigneeResolver struct {
	users UserLookup
}

func NewAssigneeResolver(users UserLookup) *AssigneeResolver {
	return &AssigneeResolver{users: users}
}

func (r *AssigneeResolver) Resolve(ctx context.Context, collectorID int64) (models.Principal, error) {
	if collectorID <= 0 {
		return models.Principal{}, apperr.NotFound("collector %d not found", collectorID)
	}
	u, err := r.users.GetByID(ctx, collectorID)
	if err != nil {
		return models.Principal{}, err
	}
	if u == nil {
		return models.Principal{}, apperr.NotFound("collector %d not found", collectorID)
	}
	if u.Role != models.RoleCollector {
		return models.Principal{}, apperr.InvalidAssignee("user %d is not a collector", collectorID)
	}
	return u.Principal(), nil
}
