// Package policy holds the per-operation authorization predicates. Each is a pure
// function of the actor (and, where ownership matters, the request) and is
// evaluated before any mutation.
package policy

import "ewastePickup/models"

// CanCreate: only requesters submit pickup requests.
func CanCreate(actor models.Principal) bool {
	return actor.Role == models.RoleRequester
}

// CanAssign: only admins bind collectors to requests.
func CanAssign(actor models.Principal) bool {
	return actor.Role == models.RoleAdmin
}

// CanComplete: admins may complete any request; a collector only the ones assigned to them.
func CanComplete(actor models.Principal, r *models.PickupRequest) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCollector:
		return r.AssignedTo(actor.ID)
	}
	return false
}

// CanCancel: the owner or an admin.
func CanCancel(actor models.Principal, r *models.PickupRequest) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleRequester:
		return r.OwnerID == actor.ID
	}
	return false
}

// CanEdit: only the owner may change the payload.
func CanEdit(actor models.Principal, r *models.PickupRequest) bool {
	return actor.Role == models.RoleRequester && r.OwnerID == actor.ID
}

// CanRate: only the owner rates the service they received.
func CanRate(actor models.Principal, r *models.PickupRequest) bool {
	return CanEdit(actor, r)
}

// CanView: requesters see their own requests, collectors the ones assigned to them, admins all.
func CanView(actor models.Principal, r *models.PickupRequest) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCollector:
		return r.AssignedTo(actor.ID)
	case models.RoleRequester:
		return r.OwnerID == actor.ID
	}
	return false
}

// CanManageCollectors covers listing and registering collector accounts.
func CanManageCollectors(actor models.Principal) bool {
	return actor.Role == models.RoleAdmin
}
