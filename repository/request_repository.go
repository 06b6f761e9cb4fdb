package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"ewastePickup/internal/apperr"
	dbpkg "ewastePickup/internal/db"
	"ewastePickup/models"
)

const requestColumns = `id, owner_id, item_type, brand, condition, quantity, pickup_address, pickup_date, notes, status, assigned_collector_id, created_at, assigned_at, completed_at, completed_by, cancelled_at, updated_at`

const selectRequests = `SELECT ` + requestColumns + ` FROM pickup_requests`

var pickupDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// RequestRepository owns the canonical collection of pickup requests.
// All mutations go through Update, which serialises transitions per request id
// and writes every changed field in a single transaction.
type RequestRepository struct {
	db    *sqlx.DB
	locks *keyedMutex
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: sqlx.NewDb(db, dbpkg.DriverName), locks: newKeyedMutex()}
}

// ValidatePayload checks the descriptive fields: everything but notes must be
// non-blank, quantity must be at least one and the pickup date must be YYYY-MM-DD.
func ValidatePayload(p models.Payload) error {
	var missing []string
	for _, f := range []struct{ name, v string }{
		{"item_type", p.ItemType},
		{"brand", p.Brand},
		{"condition", p.Condition},
		{"pickup_address", p.PickupAddress},
		{"pickup_date", p.PickupDate},
	} {
		if strings.TrimSpace(f.v) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("%s required", strings.Join(missing, ", "))
	}
	if p.Quantity < 1 {
		return apperr.Validation("quantity must be at least 1")
	}
	if !pickupDateRe.MatchString(p.PickupDate) {
		return apperr.Validation("pickup_date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(time.DateOnly, p.PickupDate); err != nil {
		return apperr.Validation("pickup_date must be YYYY-MM-DD")
	}
	return nil
}

// NormalizePayload trims surrounding whitespace from every text field.
func NormalizePayload(p models.Payload) models.Payload {
	p.ItemType = strings.TrimSpace(p.ItemType)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Condition = strings.TrimSpace(p.Condition)
	p.PickupAddress = strings.TrimSpace(p.PickupAddress)
	p.PickupDate = strings.TrimSpace(p.PickupDate)
	p.Notes = strings.TrimSpace(p.Notes)
	return p
}

// Create validates p and inserts a pending request owned by ownerID.
func (r *RequestRepository) Create(ctx context.Context, ownerID int64, p models.Payload, at time.Time) (*models.PickupRequest, error) {
	p = NormalizePayload(p)
	if err := ValidatePayload(p); err != nil {
		return nil, err
	}
	at = at.UTC()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO pickup_requests (owner_id, item_type, brand, condition, quantity, pickup_address, pickup_date, notes, status, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ownerID, p.ItemType, p.Brand, p.Condition, p.Quantity, p.PickupAddress, p.PickupDate, p.Notes, string(models.StatusPending), at, at)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Get fetches a request by id and fails with a not-found error if it is absent.
func (r *RequestRepository) Get(ctx context.Context, id int64) (*models.PickupRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var req models.PickupRequest
	if err := r.db.GetContext(ctx, &req, selectRequests+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("request %d not found", id)
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) list(ctx context.Context, where string, args ...any) ([]models.PickupRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q := selectRequests
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY id ASC"
	out := []models.PickupRequest{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns every request in creation order.
func (r *RequestRepository) ListAll(ctx context.Context) ([]models.PickupRequest, error) {
	return r.list(ctx, "")
}

// ListByOwner returns the requests submitted by ownerID in creation order.
func (r *RequestRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.PickupRequest, error) {
	return r.list(ctx, "owner_id = ?", ownerID)
}

// ListByCollector returns the requests bound to collectorID in creation order.
func (r *RequestRepository) ListByCollector(ctx context.Context, collectorID int64) ([]models.PickupRequest, error) {
	return r.list(ctx, "assigned_collector_id = ?", collectorID)
}

// Update loads request id, hands a copy to mutate and persists the result.
// Transitions on the same id never interleave; a mutate error or an invariant
// violation leaves the stored request untouched.
func (r *RequestRepository) Update(ctx context.Context, id int64, mutate RequestMutator) (*models.PickupRequest, error) {
	if mutate == nil {
		return nil, errors.New("mutator is nil")
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var before models.PickupRequest
	if err := tx.GetContext(ctx, &before, selectRequests+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("request %d not found", id)
		}
		return nil, err
	}
	after := before
	if err := mutate(&after); err != nil {
		return nil, err
	}
	after.Payload = NormalizePayload(after.Payload)
	if err := checkInvariants(&before, &after); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE pickup_requests SET item_type = ?, brand = ?, condition = ?, quantity = ?, pickup_address = ?, pickup_date = ?, notes = ?, status = ?, assigned_collector_id = ?, assigned_at = ?, completed_at = ?, completed_by = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
		after.ItemType, after.Brand, after.Condition, after.Quantity, after.PickupAddress, after.PickupDate, after.Notes,
		string(after.Status), after.AssignedCollectorID, utcPtr(after.AssignedAt), utcPtr(after.CompletedAt), after.CompletedBy, utcPtr(after.CancelledAt), after.UpdatedAt.UTC(), id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &after, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// checkInvariants rejects an update that would leave the entity inconsistent.
// These are programming errors in a mutator, not caller errors.
func checkInvariants(before, after *models.PickupRequest) error {
	switch {
	case after.ID != before.ID, after.OwnerID != before.OwnerID, !after.CreatedAt.Equal(before.CreatedAt):
		return fmt.Errorf("request %d: identity fields are immutable", before.ID)
	case !after.Status.Valid():
		return fmt.Errorf("request %d: unknown status %q", before.ID, after.Status)
	case before.Status.Terminal() && after.Status != before.Status:
		return fmt.Errorf("request %d: status %s is terminal", before.ID, before.Status)
	case after.Status == models.StatusPending && before.Status != models.StatusPending:
		return fmt.Errorf("request %d: cannot re-enter pending", before.ID)
	}
	hasCollector := after.AssignedCollectorID != nil
	switch after.Status {
	case models.StatusAssigned:
		if !hasCollector {
			return fmt.Errorf("request %d: an assigned request needs a collector", before.ID)
		}
	case models.StatusPending, models.StatusCancelled:
		if hasCollector {
			return fmt.Errorf("request %d: a %s request cannot have a collector", before.ID, after.Status)
		}
	case models.StatusCompleted:
		if before.Status == models.StatusAssigned && !sameID(before.AssignedCollectorID, after.AssignedCollectorID) {
			return fmt.Errorf("request %d: completion cannot change the collector", before.ID)
		}
	}
	completed := after.Status == models.StatusCompleted
	if (after.CompletedAt != nil) != completed || (after.CompletedBy != nil) != completed {
		return fmt.Errorf("request %d: completed_at and completed_by must be set iff status is completed", before.ID)
	}
	if before.CompletedAt != nil && !before.CompletedAt.Equal(*after.CompletedAt) {
		return fmt.Errorf("request %d: completed_at is write-once", before.ID)
	}
	if before.Status != models.StatusPending && after.Payload != before.Payload {
		return fmt.Errorf("request %d: payload is frozen once the request leaves pending", before.ID)
	}
	if after.Payload != before.Payload {
		if err := ValidatePayload(after.Payload); err != nil {
			return err
		}
	}
	return nil
}
