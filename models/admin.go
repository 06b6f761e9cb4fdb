package models

import "strings"

// Role distinguishes the three kinds of actors. Requesters are the default.
type Role string

const (
	RoleRequester Role = "requester"
	RoleCollector Role = "collector"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleCollector, RoleAdmin:
		return true
	}
	return false
}

// ParseRole normalises s and returns the matching role. The legacy name "user" maps to requester.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r == "user" {
		r = RoleRequester
	}
	return r, r.Valid()
}

// NewAdmin creates a user model with Role preset to admin.
func NewAdmin(username, email string) *User {
	return &User{Username: username, Email: email, Role: RoleAdmin}
}

// NewCollector creates a user model with Role preset to collector.
func NewCollector(username, email string) *User {
	return &User{Username: username, Email: email, Role: RoleCollector}
}
