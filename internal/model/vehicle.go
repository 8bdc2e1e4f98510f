package model

import "time"

// Vehicle is a truck registered by a transporter.  Availability is derived,
// not stored: a vehicle is free when no non-terminal assignment references it.
type Vehicle struct {
	ID             uint64    // vehicles.id
	TransporterID  uint64    // vehicles.transporter_id
	VehicleNumber  string    // vehicles.vehicle_number (registration plate)
	VehicleType    string    // vehicles.vehicle_type
	VehicleSubtype string    // vehicles.vehicle_subtype
	IsActive       bool      // vehicles.is_active
	CreatedAt      time.Time // vehicles.created_at
}
