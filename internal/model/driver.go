package model

import "time"

// Driver is a driver employed by a transporter.  UserID links the driver to
// a login account with the DRIVER role; it is nil for drivers without app
// access.  Like vehicles, availability is derived from assignments.
type Driver struct {
	ID            uint64    // drivers.id
	TransporterID uint64    // drivers.transporter_id
	UserID        *uint64   // drivers.user_id (nullable)
	Name          string    // drivers.name
	Phone         string    // drivers.phone
	IsActive      bool      // drivers.is_active
	CreatedAt     time.Time // drivers.created_at
}
