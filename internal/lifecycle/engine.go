// Package lifecycle implements the pickup request state machine:
//
//	pending  --assign (admin)-->             assigned
//	assigned --complete (collector|admin)--> completed
//	pending  --complete (admin)-->           completed
//	pending  --cancel (owner|admin)-->       cancelled
//
// Every transition checks the actor first, then runs inside the store's atomic
// Update so the whole change lands or none of it does.
package lifecycle

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"ewastePickup/internal/apperr"
	"ewastePickup/internal/logging"
	"ewastePickup/internal/metrics"
	"ewastePickup/internal/policy"
	"ewastePickup/models"
	"ewastePickup/repository"
)

// Engine owns every state change of a pickup request.
type Engine struct {
	requests repository.RequestRepositoryI
	ratings  repository.RatingRepositoryI
	resolver *AssigneeResolver
	clock    Clock
	log      logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the default monotonic wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger transitions are reported to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(requests repository.RequestRepositoryI, ratings repository.RatingRepositoryI, users UserLookup, opts ...Option) *Engine {
	e := &Engine{
		requests: requests,
		ratings:  ratings,
		resolver: NewAssigneeResolver(users),
		clock:    NewMonotonicClock(nil),
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) record(op string, err error) {
	if err == nil {
		metrics.RecordOperation(op, "ok")
		return
	}
	metrics.RecordOperation(op, string(apperr.KindOf(err)))
}

func (e *Engine) logTransition(r *models.PickupRequest, actor models.Principal, from models.RequestStatus) {
	e.log.WithFields(logrus.Fields{
		"request_id": r.ID,
		"actor_id":   actor.ID,
		"role":       actor.Role,
		"from":       from,
		"to":         r.Status,
	}).Info("request transition")
}

func (e *Engine) checkPickupDate(p models.Payload) error {
	p = repository.NormalizePayload(p)
	if err := repository.ValidatePayload(p); err != nil {
		return err
	}
	today := e.clock.Now().UTC().Format(time.DateOnly)
	// Both sides are YYYY-MM-DD, so string order is date order.
	if p.PickupDate < today {
		return apperr.Validation("pickup_date cannot be in the past")
	}
	return nil
}

// Create submits a new pending request owned by actor.
func (e *Engine) Create(ctx context.Context, p models.Payload, actor models.Principal) (out *models.PickupRequest, err error) {
	defer func() { e.record("create", err) }()
	if !policy.CanCreate(actor) {
		return nil, apperr.Authorization("only requesters can submit pickup requests")
	}
	if err := e.checkPickupDate(p); err != nil {
		return nil, err
	}
	out, err = e.requests.Create(ctx, actor.ID, p, e.clock.Now())
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"request_id": out.ID, "actor_id": actor.ID}).Info("request created")
	return out, nil
}

// Get returns a request the actor is allowed to see.
func (e *Engine) Get(ctx context.Context, id int64, actor models.Principal) (*models.PickupRequest, error) {
	r, err := e.requests.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanView(actor, r) {
		return nil, apperr.Authorization("request %d is not visible to you", id)
	}
	return r, nil
}

// List returns the requests in the actor's scope, newest first: requesters see
// their own, collectors the ones assigned to them, admins everything.
func (e *Engine) List(ctx context.Context, actor models.Principal) ([]models.PickupRequest, error) {
	var (
		out []models.PickupRequest
		err error
	)
	switch actor.Role {
	case models.RoleAdmin:
		out, err = e.requests.ListAll(ctx)
	case models.RoleCollector:
		out, err = e.requests.ListByCollector(ctx, actor.ID)
	case models.RoleRequester:
		out, err = e.requests.ListByOwner(ctx, actor.ID)
	default:
		return nil, apperr.Authorization("unknown role %q", actor.Role)
	}
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Edit applies patch to a pending request's payload. Only the owner may edit.
func (e *Engine) Edit(ctx context.Context, id int64, patch models.PayloadPatch, actor models.Principal) (out *models.PickupRequest, err error) {
	defer func() { e.record("edit", err) }()
	if actor.Role != models.RoleRequester {
		return nil, apperr.Authorization("only the owner can edit a request")
	}
	return e.requests.Update(ctx, id, func(r *models.PickupRequest) error {
		if !policy.CanEdit(actor, r) {
			return apperr.Authorization("only the owner can edit a request")
		}
		if r.Status != models.StatusPending {
			return apperr.InvalidTransition(string(r.Status), "only pending requests can be edited")
		}
		next := patch.Apply(r.Payload)
		if next.PickupDate != r.PickupDate {
			if err := e.checkPickupDate(next); err != nil {
				return err
			}
		} else if err := repository.ValidatePayload(next); err != nil {
			return err
		}
		r.Payload = next
		r.UpdatedAt = e.clock.Now()
		return nil
	})
}

// Assign binds a pending request to a collector. Checks run in order: actor role,
// collector resolution, then the request's current status.
func (e *Engine) Assign(ctx context.Context, requestID, collectorID int64, actor models.Principal) (out *models.PickupRequest, err error) {
	defer func() { e.record("assign", err) }()
	if !policy.CanAssign(actor) {
		return nil, apperr.Authorization("only admins can assign collectors")
	}
	collector, err := e.resolver.Resolve(ctx, collectorID)
	if err != nil {
		return nil, err
	}
	var from models.RequestStatus
	out, err = e.requests.Update(ctx, requestID, func(r *models.PickupRequest) error {
		from = r.Status
		if r.Status != models.StatusPending {
			return apperr.InvalidTransition(string(r.Status), "only pending requests can be assigned")
		}
		now := e.clock.Now()
		cid := collector.ID
		r.Status = models.StatusAssigned
		r.AssignedCollectorID = &cid
		r.AssignedAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logTransition(out, actor, from)
	return out, nil
}

// SetStatus moves a request to target. Completed is the caller-driven target;
// cancelled is routed to Cancel. Pending and assigned are never valid targets.
func (e *Engine) SetStatus(ctx context.Context, requestID int64, target models.RequestStatus, actor models.Principal) (*models.PickupRequest, error) {
	switch target {
	case models.StatusCompleted:
		return e.complete(ctx, requestID, actor)
	case models.StatusCancelled:
		return e.Cancel(ctx, requestID, actor)
	case models.StatusPending, models.StatusAssigned:
		if actor.Role != models.RoleCollector && actor.Role != models.RoleAdmin {
			return nil, apperr.Authorization("only collectors or admins can change request status")
		}
		r, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return nil, err
		}
		// The current status is only reported to actors allowed to act on the request.
		if !policy.CanComplete(actor, r) {
			return nil, apperr.Authorization("request %d is not assigned to you", r.ID)
		}
		return nil, apperr.InvalidTransition(string(r.Status), "%s is not a valid target status", target)
	}
	return nil, apperr.Validation("unknown status %q", target)
}

func (e *Engine) complete(ctx context.Context, requestID int64, actor models.Principal) (out *models.PickupRequest, err error) {
	defer func() { e.record("complete", err) }()
	if actor.Role != models.RoleCollector && actor.Role != models.RoleAdmin {
		return nil, apperr.Authorization("only collectors or admins can complete requests")
	}
	var from models.RequestStatus
	out, err = e.requests.Update(ctx, requestID, func(r *models.PickupRequest) error {
		from = r.Status
		if !policy.CanComplete(actor, r) {
			return apperr.Authorization("request %d is not assigned to you", r.ID)
		}
		switch r.Status {
		case models.StatusAssigned:
		case models.StatusPending:
			// Admin force-complete: no collector is recorded.
			if actor.Role != models.RoleAdmin {
				return apperr.Authorization("only admins can complete an unassigned request")
			}
		default:
			return apperr.InvalidTransition(string(r.Status), "request is already %s", r.Status)
		}
		now := e.clock.Now()
		by := actor.ID
		r.Status = models.StatusCompleted
		r.CompletedAt = &now
		r.CompletedBy = &by
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logTransition(out, actor, from)
	return out, nil
}

// Cancel withdraws a pending request. Allowed for its owner or an admin.
func (e *Engine) Cancel(ctx context.Context, requestID int64, actor models.Principal) (out *models.PickupRequest, err error) {
	defer func() { e.record("cancel", err) }()
	if actor.Role != models.RoleRequester && actor.Role != models.RoleAdmin {
		return nil, apperr.Authorization("only the owner or an admin can cancel a request")
	}
	var from models.RequestStatus
	out, err = e.requests.Update(ctx, requestID, func(r *models.PickupRequest) error {
		from = r.Status
		if !policy.CanCancel(actor, r) {
			return apperr.Authorization("only the owner or an admin can cancel a request")
		}
		if r.Status != models.StatusPending {
			return apperr.InvalidTransition(string(r.Status), "only pending requests can be cancelled")
		}
		now := e.clock.Now()
		r.Status = models.StatusCancelled
		r.CancelledAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logTransition(out, actor, from)
	return out, nil
}

// Rate records the owner's score for a completed request. Rating again replaces
// the previous score and comment.
func (e *Engine) Rate(ctx context.Context, requestID int64, rating int, comment string, actor models.Principal) (out *models.ServiceRating, err error) {
	defer func() { e.record("rate", err) }()
	if rating < models.MinRating || rating > models.MaxRating {
		return nil, apperr.Validation("rating must be between %d and %d", models.MinRating, models.MaxRating)
	}
	r, err := e.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !policy.CanRate(actor, r) {
		return nil, apperr.Authorization("only the owner can rate a request")
	}
	if r.Status != models.StatusCompleted {
		return nil, apperr.InvalidTransition(string(r.Status), "only completed requests can be rated")
	}
	return e.ratings.Upsert(ctx, &models.ServiceRating{
		RequestID: r.ID,
		UserID:    actor.ID,
		Rating:    rating,
		Comment:   comment,
		UpdatedAt: e.clock.Now(),
	})
}

// Rating returns the score recorded for a request the actor can see, or nil if none.
func (e *Engine) Rating(ctx context.Context, requestID int64, actor models.Principal) (*models.ServiceRating, error) {
	if _, err := e.Get(ctx, requestID, actor); err != nil {
		return nil, err
	}
	return e.ratings.GetByRequest(ctx, requestID)
}
