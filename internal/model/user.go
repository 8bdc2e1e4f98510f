package model

import "time"

// Role names accepted in the users.role column and the JWT "role" claim.
const (
	RoleCustomer    = "CUSTOMER"
	RoleTransporter = "TRANSPORTER"
	RoleDriver      = "DRIVER"
)

// User represents an account that can authenticate against the API.
// Customers post orders, transporters hold and confirm truck requests,
// drivers operate assignments.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
