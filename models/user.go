package models

import "time"

// User represents an account in the system. It maps to the `users` table in SQLite.
// Role is fixed at registration; there is no role-change operation.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Phone        string    `db:"phone" json:"phone"`
	Address      string    `db:"address" json:"address"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Principal is the authenticated view of a user handed to the core on every call.
type Principal struct {
	ID       int64  `json:"id"`
	Role     Role   `json:"role"`
	Username string `json:"username"`
}

// Principal returns the caller identity for u.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, Username: u.Username}
}
