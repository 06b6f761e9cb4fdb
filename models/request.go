package models

import "time"

// RequestStatus represents the progress of a pickup request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAssigned  RequestStatus = "assigned"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Payload is the requester-authored description of what to collect.
type Payload struct {
	ItemType      string `db:"item_type" json:"item_type"`
	Brand         string `db:"brand" json:"brand"`
	Condition     string `db:"condition" json:"condition"`
	Quantity      int    `db:"quantity" json:"quantity"`
	PickupAddress string `db:"pickup_address" json:"pickup_address"`
	PickupDate    string `db:"pickup_date" json:"pickup_date"` // YYYY-MM-DD
	Notes         string `db:"notes" json:"notes"`
}

// PayloadPatch carries the fields an owner may change while a request is pending.
// Nil fields are left untouched.
type PayloadPatch struct {
	ItemType      *string `json:"item_type,omitempty"`
	Brand         *string `json:"brand,omitempty"`
	Condition     *string `json:"condition,omitempty"`
	Quantity      *int    `json:"quantity,omitempty"`
	PickupAddress *string `json:"pickup_address,omitempty"`
	PickupDate    *string `json:"pickup_date,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

// Apply returns p with the non-nil fields of patch written over it.
func (patch PayloadPatch) Apply(p Payload) Payload {
	if patch.ItemType != nil {
		p.ItemType = *patch.ItemType
	}
	if patch.Brand != nil {
		p.Brand = *patch.Brand
	}
	if patch.Condition != nil {
		p.Condition = *patch.Condition
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.PickupAddress != nil {
		p.PickupAddress = *patch.PickupAddress
	}
	if patch.PickupDate != nil {
		p.PickupDate = *patch.PickupDate
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	return p
}

// PickupRequest is the unit of work tracked from submission to completion.
// OwnerID and CreatedAt never change after creation. AssignedCollectorID is set
// only by assignment and is nil for a pending request an admin force-completed.
// CompletedAt and CompletedBy are set exactly once, when the status becomes completed.
type PickupRequest struct {
	ID      int64 `db:"id" json:"id"`
	OwnerID int64 `db:"owner_id" json:"owner_id"`
	Payload
	Status              RequestStatus `db:"status" json:"status"`
	AssignedCollectorID *int64        `db:"assigned_collector_id" json:"assigned_collector_id"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	AssignedAt          *time.Time    `db:"assigned_at" json:"assigned_at"`
	CompletedAt         *time.Time    `db:"completed_at" json:"completed_at"`
	CompletedBy         *int64        `db:"completed_by" json:"completed_by"`
	CancelledAt         *time.Time    `db:"cancelled_at" json:"cancelled_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// AssignedTo reports whether the request is bound to the given collector.
func (r *PickupRequest) AssignedTo(collectorID int64) bool {
	return r.AssignedCollectorID != nil && *r.AssignedCollectorID == collectorID
}
